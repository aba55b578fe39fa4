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
	maxEANLength         = 20
	maxProductNameLength = 100
	maxDescriptionLength = 500
)

type ProductInput struct {
	EAN         string `json:"ean"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type ProductPatch struct {
	EAN         *string `json:"ean,omitempty"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
}

func validateProduct(p *models.Product) error {
	if strings.TrimSpace(p.EAN) == "" {
		return errs.InvalidArgument("EAN is required")
	}
	if utf8.RuneCountInString(p.EAN) > maxEANLength {
		return errs.InvalidArgument("EAN cannot exceed %d characters", maxEANLength)
	}
	if strings.TrimSpace(p.Name) == "" {
		return errs.InvalidArgument("product name is required")
	}
	if utf8.RuneCountInString(p.Name) > maxProductNameLength {
		return errs.InvalidArgument("product name cannot exceed %d characters", maxProductNameLength)
	}
	if utf8.RuneCountInString(p.Description) > maxDescriptionLength {
		return errs.InvalidArgument("description cannot exceed %d characters", maxDescriptionLength)
	}
	return nil
}

func checkEANFree(tx *gorm.DB, ean string, selfID int32) error {
	taken, err := exists(tx, &models.Product{}, "ean = ? AND id <> ?", ean, selfID)
	if err != nil {
		return err
	}
	if taken {
		return errs.Conflict("product with EAN %s already exists", ean)
	}
	return nil
}

func (s *InventoryHandler) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	product := models.Product{
		EAN:         strings.TrimSpace(in.EAN),
		Name:        in.Name,
		Description: in.Description,
		Image:       in.Image,
	}
	if product.Image == "" {
		product.Image = models.DefaultProductImage
	}
	if err := validateProduct(&product); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkEANFree(tx, product.EAN, 0); err != nil {
			return err
		}
		return dbError(tx.Create(&product).Error, "product not found")
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProduct(ctx, product.ID)
	return &product, nil
}

func (s *InventoryHandler) GetProduct(ctx context.Context, id int32) (*models.Product, error) {
	cacheKey := fmt.Sprintf("%s%d", PRODUCT_CACHE_PREFIX, id)

	var product models.Product
	if s.getCached(ctx, cacheKey, &product) {
		return &product, nil
	}

	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, dbError(err, fmt.Sprintf("product %d not found", id))
	}

	s.setCached(ctx, cacheKey, &product, CACHE_TTL_MEDIUM)
	return &product, nil
}

func (s *InventoryHandler) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if s.getCached(ctx, PRODUCTS_CACHE_KEY, &products) {
		return products, nil
	}

	if err := s.db.WithContext(ctx).Order("id").Find(&products).Error; err != nil {
		return nil, errs.Internal(err, "failed to list products")
	}

	s.setCached(ctx, PRODUCTS_CACHE_KEY, products, CACHE_TTL_MEDIUM)
	return products, nil
}

func (s *InventoryHandler) ProductByEAN(ctx context.Context, ean string) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Where("ean = ?", ean).First(&product).Error; err != nil {
		return nil, dbError(err, fmt.Sprintf("product with EAN %s not found", ean))
	}
	return &product, nil
}

func (s *InventoryHandler) ProductsByWarehouse(ctx context.Context, warehouseID int32) ([]models.Product, error) {
	db := s.db.WithContext(ctx)
	var products []models.Product
	if err := db.Where("id IN (?)", stockedProducts(db, warehouseID)).Order("id").Find(&products).Error; err != nil {
		return nil, errs.Internal(err, "failed to list products")
	}
	return products, nil
}

func (s *InventoryHandler) UpdateProduct(ctx context.Context, id int32, patch ProductPatch) (*models.Product, error) {
	var product models.Product
	var stockIDs []int32

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&product, id).Error; err != nil {
			return dbError(err, fmt.Sprintf("product %d not found", id))
		}
		var err error
		if stockIDs, err = stockIDsWhere(tx, "product_id = ?", id); err != nil {
			return err
		}

		if patch.EAN != nil {
			product.EAN = strings.TrimSpace(*patch.EAN)
		}
		if patch.Name != nil {
			product.Name = *patch.Name
		}
		if patch.Description != nil {
			product.Description = *patch.Description
		}
		if patch.Image != nil {
			product.Image = *patch.Image
		}

		if err := validateProduct(&product); err != nil {
			return err
		}
		if patch.EAN != nil {
			if err := checkEANFree(tx, product.EAN, product.ID); err != nil {
				return err
			}
		}
		return dbError(tx.Save(&product).Error, "product not found")
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProduct(ctx, id)
	s.InvalidateInventoryCaches(ctx, stockIDs...)
	return &product, nil
}

func (s *InventoryHandler) DeleteProduct(ctx context.Context, id int32) error {
	var stockIDs []int32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if stockIDs, err = stockIDsWhere(tx, "product_id = ?", id); err != nil {
			return err
		}
		result := tx.Delete(&models.Product{}, id)
		if result.Error != nil {
			return errs.Internal(result.Error, "failed to delete product")
		}
		if result.RowsAffected == 0 {
			return errs.NotFound("product %d not found", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateProduct(ctx, id)
	s.InvalidateInventoryCaches(ctx, stockIDs...)
	return nil
}
