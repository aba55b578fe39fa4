package handler

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
	"warehouse-system/internal/events"
)

type StockChangeInput struct {
	ProductID   int32      `json:"product_id"`
	WarehouseID int32      `json:"warehouse_id"`
	Quantity    int32      `json:"quantity"`
	ChangeDate  *time.Time `json:"change_date,omitempty"`
}

// ApplyStockChange adds delta to the warehouse level of the (product,
// warehouse) stock. The row is locked for the duration of the transaction so
// concurrent deltas on the same pair serialize.
//
// It adjusts the level only and appends no StockChange row; CreateStockChange
// is the logged path. A delta that would take the level below zero fails with
// ErrInvalidArgument and leaves the stock unchanged. A missing pair fails with
// ErrNotFound.
func (s *InventoryHandler) ApplyStockChange(ctx context.Context, productID, warehouseID, delta int32) (*models.Stock, error) {
	var stock *models.Stock

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stock, err = applyStockChange(tx, productID, warehouseID, delta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateInventoryCaches(ctx, stock.ID)
	return stock, nil
}

func applyStockChange(tx *gorm.DB, productID, warehouseID, delta int32) (*models.Stock, error) {
	var stock models.Stock
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&stock).Error; err != nil {
		return nil, dbError(err, fmt.Sprintf("no stock for product %d in warehouse %d", productID, warehouseID))
	}

	next := int64(stock.StockInWarehouse) + int64(delta)
	if next < 0 {
		return nil, errs.InvalidArgument("insufficient stock: %d in warehouse, change of %d", stock.StockInWarehouse, delta)
	}
	if next > math.MaxInt32 {
		return nil, errs.InvalidArgument("stock in warehouse would overflow")
	}

	if err := tx.Model(&stock).Update("stock_in_warehouse", int32(next)).Error; err != nil {
		return nil, errs.Internal(err, "failed to update stock")
	}
	stock.StockInWarehouse = int32(next)
	return &stock, nil
}

// CreateStockChange applies the change to the matching Stock and appends it
// to the log. A failed stock update leaves the log untouched.
func (s *InventoryHandler) CreateStockChange(ctx context.Context, in StockChangeInput) (*models.StockChange, error) {
	if in.Quantity == 0 {
		return nil, errs.InvalidArgument("quantity cannot be zero")
	}

	change := models.StockChange{
		ProductID:  in.ProductID,
		Quantity:   in.Quantity,
		ChangeDate: s.now().UTC(),
	}
	if in.ChangeDate != nil {
		change.ChangeDate = in.ChangeDate.UTC()
	}

	var stock *models.Stock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &models.Product{}, "id = ?", in.ProductID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound("product %d does not exist", in.ProductID)
		}

		stock, err = applyStockChange(tx, in.ProductID, in.WarehouseID, in.Quantity)
		if err != nil {
			return err
		}

		if err := tx.Create(&change).Error; err != nil {
			return errs.Internal(err, "failed to record stock change")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateInventoryCaches(ctx, stock.ID)
	s.stockChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("outflow", change.Quantity < 0),
	))
	s.logger.Info("Stock change recorded",
		zap.Int64("stock_change_id", change.ID),
		zap.Int32("product_id", change.ProductID),
		zap.Int32("warehouse_id", in.WarehouseID),
		zap.Int32("quantity", change.Quantity),
		zap.Int32("stock_in_warehouse", stock.StockInWarehouse))

	s.publishStockChanged(ctx, &change, stock)
	return &change, nil
}

func (s *InventoryHandler) publishStockChanged(ctx context.Context, change *models.StockChange, stock *models.Stock) {
	if s.publisher == nil {
		return
	}
	event := events.NewStockChanged(change.ID, change.ProductID, stock.WarehouseID,
		change.Quantity, stock.StockInWarehouse, change.ChangeDate)
	key := fmt.Sprintf("product-%d", change.ProductID)
	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.Warn("Failed to publish stock change", zap.Int64("stock_change_id", change.ID), zap.Error(err))
	}
}

// --- Stock Change Reads ---

func (s *InventoryHandler) GetStockChange(ctx context.Context, id int64) (*models.StockChange, error) {
	var change models.StockChange
	if err := s.db.WithContext(ctx).Preload("Product").First(&change, id).Error; err != nil {
		return nil, dbError(err, fmt.Sprintf("stock change %d not found", id))
	}
	return &change, nil
}

func (s *InventoryHandler) ListStockChanges(ctx context.Context) ([]models.StockChange, error) {
	var changes []models.StockChange
	if err := s.db.WithContext(ctx).Preload("Product").Order("change_date DESC, id DESC").Find(&changes).Error; err != nil {
		return nil, errs.Internal(err, "failed to list stock changes")
	}
	return changes, nil
}

// stockedProducts selects the ids of products that have a Stock in the warehouse.
func stockedProducts(tx *gorm.DB, warehouseID int32) *gorm.DB {
	return tx.Model(&models.Stock{}).Select("product_id").Where("warehouse_id = ?", warehouseID)
}

func (s *InventoryHandler) StockChangesByWarehouse(ctx context.Context, warehouseID int32) ([]models.StockChange, error) {
	db := s.db.WithContext(ctx)
	var changes []models.StockChange
	if err := db.Preload("Product").
		Where("product_id IN (?)", stockedProducts(db, warehouseID)).
		Order("change_date DESC, id DESC").
		Find(&changes).Error; err != nil {
		return nil, errs.Internal(err, "failed to list stock changes")
	}
	return changes, nil
}

func (s *InventoryHandler) StockChangesByProduct(ctx context.Context, productID, warehouseID int32) ([]models.StockChange, error) {
	db := s.db.WithContext(ctx)

	ok, err := exists(db, &models.Stock{}, "product_id = ? AND warehouse_id = ?", productID, warehouseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotFound("no stock for product %d in warehouse %d", productID, warehouseID)
	}

	var changes []models.StockChange
	if err := db.Where("product_id = ?", productID).
		Order("change_date DESC, id DESC").
		Find(&changes).Error; err != nil {
		return nil, errs.Internal(err, "failed to list stock changes")
	}
	return changes, nil
}
