package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
)

const (
	storageCostLookbackDays = 30
	stuckProductDays        = 30
)

type ProductStockChanges struct {
	Product      models.Product       `json:"product"`
	Stock        models.Stock         `json:"stock"`
	StockChanges []models.StockChange `json:"stock_changes"`
}

type DailyCost struct {
	Date time.Time       `json:"date"`
	Cost decimal.Decimal `json:"cost"`
}

type ProductStorageCost struct {
	Product    models.Product `json:"product"`
	DailyCosts []DailyCost    `json:"daily_costs"`
}

type ProductSales struct {
	ProductID int32  `json:"product_id"`
	Name      string `json:"name"`
	Sold      int64  `json:"sold"`
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MovingAverageSaleQuantity averages the magnitudes of the last windowSize
// outflows of the product. Fewer than windowSize outflows is an error.
func (s *InventoryHandler) MovingAverageSaleQuantity(ctx context.Context, productID, warehouseID int32, windowSize int) (float64, error) {
	if windowSize <= 0 {
		return 0, errs.InvalidArgument("window size must be greater than 0")
	}

	db := s.db.WithContext(ctx)
	ok, err := exists(db, &models.Stock{}, "product_id = ? AND warehouse_id = ?", productID, warehouseID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.NotFound("no stock for product %d in warehouse %d", productID, warehouseID)
	}

	var changes []models.StockChange
	if err := db.Where("product_id = ? AND quantity < 0", productID).
		Order("change_date DESC, id DESC").
		Limit(windowSize).
		Find(&changes).Error; err != nil {
		return 0, errs.Internal(err, "failed to load stock changes")
	}

	if len(changes) < windowSize {
		return 0, errs.InvalidArgument("not enough sales to average: have %d, need %d", len(changes), windowSize)
	}

	var total int64
	for _, c := range changes {
		total -= int64(c.Quantity)
	}
	return float64(total) / float64(windowSize), nil
}

// previousWeek returns the inclusive day bounds of the week before today.
func previousWeek(now time.Time) (time.Time, time.Time) {
	today := truncateDay(now)
	start := today.AddDate(0, 0, -(int(today.Weekday()) + 6))
	end := start.AddDate(0, 0, 6)
	return start, end
}

func (s *InventoryHandler) PreviousWeekSales(ctx context.Context, warehouseID int32) ([]models.StockChange, error) {
	start, end := previousWeek(s.now())

	db := s.db.WithContext(ctx)
	var changes []models.StockChange
	if err := db.Preload("Product").
		Where("quantity < 0").
		Where("change_date >= ? AND change_date < ?", start, end.AddDate(0, 0, 1)).
		Where("product_id IN (?)", stockedProducts(db, warehouseID)).
		Order("change_date, id").
		Find(&changes).Error; err != nil {
		return nil, errs.Internal(err, "failed to load previous week sales")
	}
	return changes, nil
}

// loadWarehouseHistory returns the warehouse's stocks with their products and
// every stock change of those products in chronological order.
func (s *InventoryHandler) loadWarehouseHistory(ctx context.Context, warehouseID int32) ([]models.Stock, map[int32][]models.StockChange, error) {
	db := s.db.WithContext(ctx)

	var stocks []models.Stock
	if err := db.Preload("Product").Where("warehouse_id = ?", warehouseID).Order("product_id").Find(&stocks).Error; err != nil {
		return nil, nil, errs.Internal(err, "failed to load stocks")
	}

	var changes []models.StockChange
	if err := db.Where("product_id IN (?)", stockedProducts(db, warehouseID)).
		Order("change_date, id").
		Find(&changes).Error; err != nil {
		return nil, nil, errs.Internal(err, "failed to load stock changes")
	}

	byProduct := make(map[int32][]models.StockChange, len(stocks))
	for _, c := range changes {
		byProduct[c.ProductID] = append(byProduct[c.ProductID], c)
	}
	return stocks, byProduct, nil
}

// WarehouseCost bundles each stock in the warehouse with the full change
// history of its product.
func (s *InventoryHandler) WarehouseCost(ctx context.Context, warehouseID int32) ([]ProductStockChanges, error) {
	stocks, history, err := s.loadWarehouseHistory(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	result := make([]ProductStockChanges, 0, len(stocks))
	for _, stock := range stocks {
		entry := ProductStockChanges{
			Stock:        stock,
			StockChanges: history[stock.ProductID],
		}
		if stock.Product != nil {
			entry.Product = *stock.Product
		}
		entry.Stock.Product = nil
		if entry.StockChanges == nil {
			entry.StockChanges = []models.StockChange{}
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *InventoryHandler) DailyStorageCost(ctx context.Context, warehouseID int32) ([]ProductStorageCost, error) {
	stocks, history, err := s.loadWarehouseHistory(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	today := truncateDay(s.now())
	result := make([]ProductStorageCost, 0, len(stocks))
	for _, stock := range stocks {
		entry := ProductStorageCost{
			DailyCosts: storageCostSeries(stock.StockInWarehouse, stock.StorageCost, history[stock.ProductID], today),
		}
		if stock.Product != nil {
			entry.Product = *stock.Product
		}
		result = append(result, entry)
	}
	return result, nil
}

// storageCostSeries walks forward from min(first change day, today-30) to
// today. The walk starts from the current level, not a reconstructed
// historical one. changes must be sorted by date.
func storageCostSeries(current int32, unitCost decimal.Decimal, changes []models.StockChange, today time.Time) []DailyCost {
	start := today.AddDate(0, 0, -storageCostLookbackDays)
	if len(changes) > 0 {
		if first := truncateDay(changes[0].ChangeDate); first.Before(start) {
			start = first
		}
	}

	running := int64(current)
	next := 0
	var series []DailyCost
	for day := start; !day.After(today); day = day.AddDate(0, 0, 1) {
		for next < len(changes) && !truncateDay(changes[next].ChangeDate).After(day) {
			running += int64(changes[next].Quantity)
			if running < 0 {
				running = 0
			}
			next++
		}
		series = append(series, DailyCost{
			Date: day,
			Cost: unitCost.Mul(decimal.NewFromInt(running)),
		})
	}
	return series
}

// ProductsSold totals the outflow of every product stocked in the warehouse,
// best sellers first.
func (s *InventoryHandler) ProductsSold(ctx context.Context, warehouseID int32) ([]ProductSales, error) {
	db := s.db.WithContext(ctx)

	var sales []ProductSales
	if err := db.Table("stock_changes").
		Select("stock_changes.product_id AS product_id, products.name AS name, SUM(-stock_changes.quantity) AS sold").
		Joins("JOIN products ON products.id = stock_changes.product_id").
		Where("stock_changes.quantity < 0").
		Where("stock_changes.product_id IN (?)", stockedProducts(db, warehouseID)).
		Group("stock_changes.product_id, products.name").
		Order("sold DESC, stock_changes.product_id").
		Scan(&sales).Error; err != nil {
		return nil, errs.Internal(err, "failed to total sales")
	}
	return sales, nil
}

func (s *InventoryHandler) MostSoldProduct(ctx context.Context, warehouseID int32) (*models.Product, error) {
	sales, err := s.ProductsSold(ctx, warehouseID)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, errs.NotFound("no sales recorded for warehouse %d", warehouseID)
	}
	return s.GetProduct(ctx, sales[0].ProductID)
}

// StuckProducts lists products holding warehouse stock that recorded no
// outflow in the last thirty days.
func (s *InventoryHandler) StuckProducts(ctx context.Context, warehouseID int32) ([]models.Product, error) {
	db := s.db.WithContext(ctx)
	since := truncateDay(s.now()).AddDate(0, 0, -stuckProductDays)

	recentSales := db.Model(&models.StockChange{}).
		Select("product_id").
		Where("quantity < 0 AND change_date >= ?", since)

	var products []models.Product
	if err := db.
		Joins("JOIN stocks ON stocks.product_id = products.id").
		Where("stocks.warehouse_id = ? AND stocks.stock_in_warehouse > 0", warehouseID).
		Where("products.id NOT IN (?)", recentSales).
		Order("products.id").
		Find(&products).Error; err != nil {
		return nil, errs.Internal(err, "failed to load stuck products")
	}
	return products, nil
}
