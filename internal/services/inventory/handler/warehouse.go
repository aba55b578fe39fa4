package handler

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
)

const (
	maxWarehouseNameLength = 100
	maxLocationLength      = 200
)

type WarehouseInput struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

type WarehousePatch struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
}

func validateWarehouse(w *models.Warehouse) error {
	if strings.TrimSpace(w.Name) == "" {
		return errs.InvalidArgument("warehouse name is required")
	}
	if utf8.RuneCountInString(w.Name) > maxWarehouseNameLength {
		return errs.InvalidArgument("warehouse name cannot exceed %d characters", maxWarehouseNameLength)
	}
	if strings.TrimSpace(w.Location) == "" {
		return errs.InvalidArgument("warehouse location is required")
	}
	if utf8.RuneCountInString(w.Location) > maxLocationLength {
		return errs.InvalidArgument("warehouse location cannot exceed %d characters", maxLocationLength)
	}
	return nil
}

func checkLocationFree(tx *gorm.DB, location string, selfID int32) error {
	taken, err := exists(tx, &models.Warehouse{}, "location = ? AND id <> ?", location, selfID)
	if err != nil {
		return err
	}
	if taken {
		return errs.Conflict("a warehouse already exists at %s", location)
	}
	return nil
}

func (s *InventoryHandler) CreateWarehouse(ctx context.Context, in WarehouseInput) (*models.Warehouse, error) {
	warehouse := models.Warehouse{
		Name:     in.Name,
		Location: strings.TrimSpace(in.Location),
	}
	if err := validateWarehouse(&warehouse); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkLocationFree(tx, warehouse.Location, 0); err != nil {
			return err
		}
		return dbError(tx.Create(&warehouse).Error, "warehouse not found")
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateInventoryCaches(ctx)
	return &warehouse, nil
}

func (s *InventoryHandler) GetWarehouse(ctx context.Context, id int32) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	if err := s.db.WithContext(ctx).First(&warehouse, id).Error; err != nil {
		return nil, dbError(err, fmt.Sprintf("warehouse %d not found", id))
	}
	return &warehouse, nil
}

func (s *InventoryHandler) ListWarehouses(ctx context.Context) ([]models.Warehouse, error) {
	var warehouses []models.Warehouse
	if s.getCached(ctx, WAREHOUSE_CACHE_KEY, &warehouses) {
		return warehouses, nil
	}

	if err := s.db.WithContext(ctx).Order("id").Find(&warehouses).Error; err != nil {
		return nil, errs.Internal(err, "failed to list warehouses")
	}

	s.setCached(ctx, WAREHOUSE_CACHE_KEY, warehouses, CACHE_TTL_LONG)
	return warehouses, nil
}

// WarehousesForUser lists the warehouses a user is assigned to.
func (s *InventoryHandler) WarehousesForUser(ctx context.Context, userID int32) ([]models.Warehouse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Warehouses").First(&user, userID).Error; err != nil {
		return nil, dbError(err, fmt.Sprintf("user %d not found", userID))
	}
	return user.Warehouses, nil
}

func (s *InventoryHandler) UpdateWarehouse(ctx context.Context, id int32, patch WarehousePatch) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	var stockIDs []int32

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&warehouse, id).Error; err != nil {
			return dbError(err, fmt.Sprintf("warehouse %d not found", id))
		}
		var err error
		if stockIDs, err = stockIDsWhere(tx, "warehouse_id = ?", id); err != nil {
			return err
		}

		if patch.Name != nil {
			warehouse.Name = *patch.Name
		}
		if patch.Location != nil {
			warehouse.Location = strings.TrimSpace(*patch.Location)
		}

		if err := validateWarehouse(&warehouse); err != nil {
			return err
		}
		if patch.Location != nil {
			if err := checkLocationFree(tx, warehouse.Location, warehouse.ID); err != nil {
				return err
			}
		}
		return dbError(tx.Save(&warehouse).Error, "warehouse not found")
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateInventoryCaches(ctx, stockIDs...)
	return &warehouse, nil
}

func (s *InventoryHandler) DeleteWarehouse(ctx context.Context, id int32) error {
	var stockIDs []int32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if stockIDs, err = stockIDsWhere(tx, "warehouse_id = ?", id); err != nil {
			return err
		}
		warehouse := models.Warehouse{ID: id}
		if err := tx.Model(&warehouse).Association("Users").Clear(); err != nil {
			return errs.Internal(err, "failed to detach users")
		}
		result := tx.Delete(&models.Warehouse{}, id)
		if result.Error != nil {
			return errs.Internal(result.Error, "failed to delete warehouse")
		}
		if result.RowsAffected == 0 {
			return errs.NotFound("warehouse %d not found", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.InvalidateInventoryCaches(ctx, stockIDs...)
	return nil
}
