package handler

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
)

const (
	defaultWhenToWarn   int32 = 0
	defaultWhenToNotify int32 = 100
	maxCurrencyLength         = 50
)

type StockInput struct {
	ProductID         int32           `json:"product_id"`
	WarehouseID       int32           `json:"warehouse_id"`
	StockInWarehouse  int32           `json:"stock_in_warehouse"`
	StockInStore      int32           `json:"stock_in_store"`
	WarehouseCapacity int32           `json:"warehouse_capacity"`
	StoreCapacity     int32           `json:"store_capacity"`
	Price             decimal.Decimal `json:"price"`
	Currency          string          `json:"currency"`
	TransportCost     decimal.Decimal `json:"transport_cost"`
	StorageCost       decimal.Decimal `json:"storage_cost"`
	WhenToWarn        *int32          `json:"when_to_warn,omitempty"`
	WhenToNotify      *int32          `json:"when_to_notify,omitempty"`
}

// StockPatch carries a partial update. Nil fields keep the stored value.
type StockPatch struct {
	ProductID         *int32           `json:"product_id,omitempty"`
	WarehouseID       *int32           `json:"warehouse_id,omitempty"`
	StockInWarehouse  *int32           `json:"stock_in_warehouse,omitempty"`
	StockInStore      *int32           `json:"stock_in_store,omitempty"`
	WarehouseCapacity *int32           `json:"warehouse_capacity,omitempty"`
	StoreCapacity     *int32           `json:"store_capacity,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	Currency          *string          `json:"currency,omitempty"`
	TransportCost     *decimal.Decimal `json:"transport_cost,omitempty"`
	StorageCost       *decimal.Decimal `json:"storage_cost,omitempty"`
	WhenToWarn        *int32           `json:"when_to_warn,omitempty"`
	WhenToNotify      *int32           `json:"when_to_notify,omitempty"`
}

func (in StockInput) toModel() models.Stock {
	stock := models.Stock{
		ProductID:         in.ProductID,
		WarehouseID:       in.WarehouseID,
		StockInWarehouse:  in.StockInWarehouse,
		StockInStore:      in.StockInStore,
		WarehouseCapacity: in.WarehouseCapacity,
		StoreCapacity:     in.StoreCapacity,
		Price:             in.Price,
		Currency:          in.Currency,
		TransportCost:     in.TransportCost,
		StorageCost:       in.StorageCost,
		WhenToWarn:        defaultWhenToWarn,
		WhenToNotify:      defaultWhenToNotify,
	}
	if in.WhenToWarn != nil {
		stock.WhenToWarn = *in.WhenToWarn
	}
	if in.WhenToNotify != nil {
		stock.WhenToNotify = *in.WhenToNotify
	}
	return stock
}

func (p StockPatch) apply(stock *models.Stock) {
	if p.ProductID != nil {
		stock.ProductID = *p.ProductID
	}
	if p.WarehouseID != nil {
		stock.WarehouseID = *p.WarehouseID
	}
	if p.StockInWarehouse != nil {
		stock.StockInWarehouse = *p.StockInWarehouse
	}
	if p.StockInStore != nil {
		stock.StockInStore = *p.StockInStore
	}
	if p.WarehouseCapacity != nil {
		stock.WarehouseCapacity = *p.WarehouseCapacity
	}
	if p.StoreCapacity != nil {
		stock.StoreCapacity = *p.StoreCapacity
	}
	if p.Price != nil {
		stock.Price = *p.Price
	}
	if p.Currency != nil {
		stock.Currency = *p.Currency
	}
	if p.TransportCost != nil {
		stock.TransportCost = *p.TransportCost
	}
	if p.StorageCost != nil {
		stock.StorageCost = *p.StorageCost
	}
	if p.WhenToWarn != nil {
		stock.WhenToWarn = *p.WhenToWarn
	}
	if p.WhenToNotify != nil {
		stock.WhenToNotify = *p.WhenToNotify
	}
}

// validateStockFields checks the invariants that need no database access.
func validateStockFields(stock *models.Stock) error {
	if utf8.RuneCountInString(stock.Currency) > maxCurrencyLength {
		return errs.InvalidArgument("currency cannot exceed %d characters", maxCurrencyLength)
	}
	if stock.StockInWarehouse < 0 || stock.StockInStore < 0 {
		return errs.InvalidArgument("stock cannot be negative")
	}
	if stock.WarehouseCapacity <= 0 || stock.StoreCapacity <= 0 {
		return errs.InvalidArgument("capacity must be greater than 0")
	}
	if stock.StockInStore > stock.StoreCapacity && stock.StockInWarehouse > stock.WarehouseCapacity {
		return errs.InvalidArgument("stock in store and warehouse cannot both exceed their capacities")
	}
	return nil
}

func validateThresholds(stock *models.Stock) error {
	if stock.WhenToWarn < 0 || stock.WhenToWarn > 100 {
		return errs.InvalidArgument("warn threshold must be between 0 and 100")
	}
	if stock.WhenToNotify < 0 || stock.WhenToNotify > 100 {
		return errs.InvalidArgument("notify threshold must be between 0 and 100")
	}
	if stock.WhenToWarn > stock.WhenToNotify {
		return errs.InvalidArgument("warn threshold cannot be greater than notify threshold")
	}
	return nil
}

func validateCosts(stock *models.Stock) error {
	if stock.Price.IsNegative() {
		return errs.InvalidArgument("price cannot be negative")
	}
	if stock.TransportCost.IsNegative() || stock.StorageCost.IsNegative() {
		return errs.InvalidArgument("costs cannot be negative")
	}
	return nil
}

// validateStock runs every Stock invariant in the order callers observe them:
// field ranges, referenced rows, thresholds, then costs.
func validateStock(tx *gorm.DB, stock *models.Stock) error {
	if err := validateStockFields(stock); err != nil {
		return err
	}

	ok, err := exists(tx, &models.Warehouse{}, "id = ?", stock.WarehouseID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("warehouse %d does not exist", stock.WarehouseID)
	}

	ok, err = exists(tx, &models.Product{}, "id = ?", stock.ProductID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound("product %d does not exist", stock.ProductID)
	}

	if err := validateThresholds(stock); err != nil {
		return err
	}
	return validateCosts(stock)
}

func checkPairFree(tx *gorm.DB, stock *models.Stock) error {
	taken, err := exists(tx, &models.Stock{}, "product_id = ? AND warehouse_id = ? AND id <> ?",
		stock.ProductID, stock.WarehouseID, stock.ID)
	if err != nil {
		return err
	}
	if taken {
		return errs.Conflict("product %d already has a stock in warehouse %d", stock.ProductID, stock.WarehouseID)
	}
	return nil
}

// --- Stock CRUD ---

func (s *InventoryHandler) CreateStock(ctx context.Context, in StockInput) (*models.Stock, error) {
	stock := in.toModel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := validateStock(tx, &stock); err != nil {
			return err
		}
		if err := checkPairFree(tx, &stock); err != nil {
			return err
		}
		return dbError(tx.Create(&stock).Error, "stock not found")
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateInventoryCaches(ctx)
	s.logger.Info("Stock created",
		zap.Int32("stock_id", stock.ID),
		zap.Int32("product_id", stock.ProductID),
		zap.Int32("warehouse_id", stock.WarehouseID))

	return &stock, nil
}

func (s *InventoryHandler) UpdateStock(ctx context.Context, id int32, patch StockPatch) (*models.Stock, error) {
	var stock models.Stock

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&stock, id).Error; err != nil {
			return dbError(err, fmt.Sprintf("stock %d not found", id))
		}

		patch.apply(&stock)

		if err := validateStock(tx, &stock); err != nil {
			return err
		}
		if patch.ProductID != nil || patch.WarehouseID != nil {
			if err := checkPairFree(tx, &stock); err != nil {
				return err
			}
		}
		return dbError(tx.Save(&stock).Error, "stock not found")
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateInventoryCaches(ctx, id)
	return &stock, nil
}

func (s *InventoryHandler) DeleteStock(ctx context.Context, id int32) error {
	result := s.db.WithContext(ctx).Delete(&models.Stock{}, id)
	if result.Error != nil {
		return errs.Internal(result.Error, "failed to delete stock")
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("stock %d not found", id)
	}

	s.InvalidateInventoryCaches(ctx, id)
	return nil
}

// --- Stock Reads ---

func (s *InventoryHandler) GetStock(ctx context.Context, id int32) (*models.Stock, error) {
	cacheKey := fmt.Sprintf("%s%d", STOCK_CACHE_PREFIX, id)

	var cached models.Stock
	if s.getCached(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	var stock models.Stock
	if err := s.db.WithContext(ctx).Preload("Product").Preload("Warehouse").First(&stock, id).Error; err != nil {
		return nil, dbError(err, fmt.Sprintf("stock %d not found", id))
	}

	s.setCached(ctx, cacheKey, &stock, CACHE_TTL_SHORT)
	return &stock, nil
}

func (s *InventoryHandler) ListStocks(ctx context.Context) ([]models.Stock, error) {
	var stocks []models.Stock
	if s.getCached(ctx, STOCKS_CACHE_KEY, &stocks) {
		return stocks, nil
	}

	if err := s.db.WithContext(ctx).Preload("Product").Preload("Warehouse").Order("id").Find(&stocks).Error; err != nil {
		return nil, errs.Internal(err, "failed to list stocks")
	}

	s.setCached(ctx, STOCKS_CACHE_KEY, stocks, CACHE_TTL_SHORT)
	return stocks, nil
}

func (s *InventoryHandler) StocksByWarehouse(ctx context.Context, warehouseID int32) ([]models.Stock, error) {
	var stocks []models.Stock
	if err := s.db.WithContext(ctx).Preload("Product").Preload("Warehouse").
		Where("warehouse_id = ?", warehouseID).Order("id").Find(&stocks).Error; err != nil {
		return nil, errs.Internal(err, "failed to list stocks")
	}
	return stocks, nil
}

func (s *InventoryHandler) StockByProduct(ctx context.Context, productID int32) (*models.Stock, error) {
	var stock models.Stock
	if err := s.db.WithContext(ctx).Preload("Product").Preload("Warehouse").
		Where("product_id = ?", productID).Order("id").First(&stock).Error; err != nil {
		return nil, dbError(err, fmt.Sprintf("no stock for product %d", productID))
	}
	return &stock, nil
}
