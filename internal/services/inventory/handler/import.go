package handler

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
)

const importBatchSize = 200

type ImportResult struct {
	Table    Table `json:"table"`
	Inserted int   `json:"inserted"`
	Updated  int   `json:"updated"`
}

// Import decodes sheet records for table and reconciles them against the
// store. Nothing is written unless every row is valid.
func (s *InventoryHandler) Import(ctx context.Context, table Table, header []string, records [][]string) (*ImportResult, error) {
	if len(records) == 0 {
		return nil, errs.InvalidArgument("no data found to import")
	}

	var (
		result *ImportResult
		err    error
	)
	switch table {
	case TableProducts:
		var rows []ProductRow
		if rows, err = ProductSchema.Decode(header, records); err == nil {
			result, err = s.ImportProducts(ctx, rows)
		}
	case TableWarehouses:
		var rows []WarehouseRow
		if rows, err = WarehouseSchema.Decode(header, records); err == nil {
			result, err = s.ImportWarehouses(ctx, rows)
		}
	case TableStocks:
		var rows []StockRow
		if rows, err = StockSchema.Decode(header, records); err == nil {
			result, err = s.ImportStocks(ctx, rows)
		}
	case TableStockChanges:
		var rows []StockChangeRow
		if rows, err = StockChangeSchema.Decode(header, records); err == nil {
			result, err = s.ImportStockChanges(ctx, rows)
		}
	default:
		return nil, errs.InvalidArgument("unsupported table %q", table)
	}
	if err != nil {
		return nil, err
	}

	s.InvalidateInventoryCaches(ctx)
	s.logger.Info("Import completed",
		zap.String("table", string(result.Table)),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated))
	return result, nil
}

// saveBatch writes every update and then every insert inside tx. Updates go
// first so an insert may take a unique value an updated row gives up.
func saveBatch[T any](tx *gorm.DB, inserts []T, updates []T) error {
	for i := range updates {
		if err := tx.Save(&updates[i]).Error; err != nil {
			return dbError(err, "record not found")
		}
	}
	if len(inserts) > 0 {
		if err := tx.CreateInBatches(&inserts, importBatchSize).Error; err != nil {
			return dbError(err, "record not found")
		}
	}
	return nil
}

// missingIDs returns the ids from want that have no row in model's table.
func missingIDs(tx *gorm.DB, model interface{}, want []int32) ([]int32, error) {
	if len(want) == 0 {
		return nil, nil
	}
	var found []int32
	if err := tx.Model(model).Where("id IN ?", want).Pluck("id", &found).Error; err != nil {
		return nil, errs.Internal(err, "database error")
	}
	have := make(map[int32]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	var missing []int32
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func uniqueIDs(ids []int32) []int32 {
	seen := make(map[int32]struct{}, len(ids))
	out := make([]int32, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// --- Products ---

// ImportProducts reconciles by EAN: known EANs get name and description
// overwritten, unknown EANs are inserted.
func (s *InventoryHandler) ImportProducts(ctx context.Context, rows []ProductRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, errs.InvalidArgument("no data found to import")
	}

	candidates := make([]models.Product, len(rows))
	seen := make(map[string]int, len(rows))
	eans := make([]string, 0, len(rows))
	for i, row := range rows {
		p := models.Product{EAN: row.EAN, Name: row.Name, Description: row.Description, Image: models.DefaultProductImage}
		if err := validateProduct(&p); err != nil {
			return nil, errs.InvalidArgument("row %d: %s", i+2, errs.Message(err))
		}
		if first, dup := seen[p.EAN]; dup {
			return nil, errs.Conflict("rows %d and %d share EAN %s", first+2, i+2, p.EAN)
		}
		seen[p.EAN] = i
		eans = append(eans, p.EAN)
		candidates[i] = p
	}

	result := &ImportResult{Table: TableProducts}
	var updates []models.Product
	var stockIDs []int32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []models.Product
		if err := tx.Where("ean IN ?", eans).Find(&current).Error; err != nil {
			return errs.Internal(err, "failed to load products")
		}
		byEAN := make(map[string]models.Product, len(current))
		for _, p := range current {
			byEAN[p.EAN] = p
		}

		var inserts []models.Product
		for _, c := range candidates {
			existing, ok := byEAN[c.EAN]
			if !ok {
				inserts = append(inserts, c)
				continue
			}
			existing.Name = c.Name
			existing.Description = c.Description
			updates = append(updates, existing)
		}

		if len(updates) > 0 {
			productIDs := make([]int32, len(updates))
			for i, p := range updates {
				productIDs[i] = p.ID
			}
			var err error
			if stockIDs, err = stockIDsWhere(tx, "product_id IN ?", productIDs); err != nil {
				return err
			}
		}

		result.Inserted, result.Updated = len(inserts), len(updates)
		return saveBatch(tx, inserts, updates)
	})
	if err != nil {
		return nil, err
	}
	for _, p := range updates {
		s.invalidateProduct(ctx, p.ID)
	}
	s.InvalidateInventoryCaches(ctx, stockIDs...)
	return result, nil
}

// --- Warehouses ---

// ImportWarehouses reconciles by Id. Rows without a known Id are inserted.
// Locations must be unique across the batch and the store.
func (s *InventoryHandler) ImportWarehouses(ctx context.Context, rows []WarehouseRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, errs.InvalidArgument("no data found to import")
	}

	locations := make(map[string]int, len(rows))
	ids := make(map[int32]int, len(rows))
	for i, row := range rows {
		w := models.Warehouse{Name: row.Name, Location: row.Location}
		if err := validateWarehouse(&w); err != nil {
			return nil, errs.InvalidArgument("row %d: %s", i+2, errs.Message(err))
		}
		if first, dup := locations[row.Location]; dup {
			return nil, errs.Conflict("rows %d and %d share location %s", first+2, i+2, row.Location)
		}
		locations[row.Location] = i
		if row.ID != 0 {
			if first, dup := ids[row.ID]; dup {
				return nil, errs.Conflict("rows %d and %d share id %d", first+2, i+2, row.ID)
			}
			ids[row.ID] = i
		}
	}

	result := &ImportResult{Table: TableWarehouses}
	var stockIDs []int32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []models.Warehouse
		if err := tx.Find(&current).Error; err != nil {
			return errs.Internal(err, "failed to load warehouses")
		}
		byID := make(map[int32]models.Warehouse, len(current))
		for _, w := range current {
			byID[w.ID] = w
		}

		// Locations held by rows this batch does not rewrite stay reserved.
		reserved := make(map[string]int32, len(current))
		for _, w := range current {
			if _, rewritten := ids[w.ID]; !rewritten {
				reserved[w.Location] = w.ID
			}
		}

		var inserts, updates []models.Warehouse
		for i, row := range rows {
			if owner, taken := reserved[row.Location]; taken {
				return errs.Conflict("row %d: location %s is already used by warehouse %d", i+2, row.Location, owner)
			}
			existing, ok := byID[row.ID]
			if row.ID == 0 || !ok {
				inserts = append(inserts, models.Warehouse{Name: row.Name, Location: row.Location})
				continue
			}
			existing.Name = row.Name
			existing.Location = row.Location
			updates = append(updates, existing)
		}

		if len(updates) > 0 {
			warehouseIDs := make([]int32, len(updates))
			for i, w := range updates {
				warehouseIDs[i] = w.ID
			}
			var err error
			if stockIDs, err = stockIDsWhere(tx, "warehouse_id IN ?", warehouseIDs); err != nil {
				return err
			}
		}

		result.Inserted, result.Updated = len(inserts), len(updates)
		return saveBatch(tx, inserts, updates)
	})
	if err != nil {
		return nil, err
	}
	s.InvalidateInventoryCaches(ctx, stockIDs...)
	return result, nil
}

// --- Stocks ---

// ImportStocks reconciles by ProductId, assuming at most one Stock per
// product. Matched stocks get levels, capacities, price and currency
// overwritten.
func (s *InventoryHandler) ImportStocks(ctx context.Context, rows []StockRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, errs.InvalidArgument("no data found to import")
	}

	candidates := make([]models.Stock, len(rows))
	seen := make(map[int32]int, len(rows))
	productIDs := make([]int32, 0, len(rows))
	warehouseIDs := make([]int32, 0, len(rows))
	for i, row := range rows {
		stock := models.Stock{
			ProductID:         row.ProductID,
			WarehouseID:       row.WarehouseID,
			StockInWarehouse:  row.StockInWarehouse,
			StockInStore:      row.StockInStore,
			WarehouseCapacity: row.WarehouseCapacity,
			StoreCapacity:     row.StoreCapacity,
			Price:             row.Price,
			Currency:          row.Currency,
			WhenToWarn:        defaultWhenToWarn,
			WhenToNotify:      defaultWhenToNotify,
		}
		if err := validateStockFields(&stock); err != nil {
			return nil, errs.InvalidArgument("row %d: %s", i+2, errs.Message(err))
		}
		if err := validateCosts(&stock); err != nil {
			return nil, errs.InvalidArgument("row %d: %s", i+2, errs.Message(err))
		}
		if first, dup := seen[row.ProductID]; dup {
			return nil, errs.Conflict("rows %d and %d both stock product %d", first+2, i+2, row.ProductID)
		}
		seen[row.ProductID] = i
		productIDs = append(productIDs, row.ProductID)
		warehouseIDs = append(warehouseIDs, row.WarehouseID)
		candidates[i] = stock
	}

	result := &ImportResult{Table: TableStocks}
	var updates []models.Stock
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		missing, err := missingIDs(tx, &models.Warehouse{}, uniqueIDs(warehouseIDs))
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return errs.NotFound("warehouses %v do not exist", missing)
		}
		missing, err = missingIDs(tx, &models.Product{}, productIDs)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return errs.NotFound("products %v do not exist", missing)
		}

		var current []models.Stock
		if err := tx.Where("product_id IN ?", productIDs).Order("id").Find(&current).Error; err != nil {
			return errs.Internal(err, "failed to load stocks")
		}
		byProduct := make(map[int32]models.Stock, len(current))
		for _, stock := range current {
			if _, dup := byProduct[stock.ProductID]; dup {
				return errs.Conflict("product %d has more than one stock", stock.ProductID)
			}
			byProduct[stock.ProductID] = stock
		}

		var inserts []models.Stock
		for _, c := range candidates {
			existing, ok := byProduct[c.ProductID]
			if !ok {
				inserts = append(inserts, c)
				continue
			}
			existing.StockInWarehouse = c.StockInWarehouse
			existing.StockInStore = c.StockInStore
			existing.WarehouseCapacity = c.WarehouseCapacity
			existing.StoreCapacity = c.StoreCapacity
			existing.Price = c.Price
			existing.Currency = c.Currency
			updates = append(updates, existing)
		}

		result.Inserted, result.Updated = len(inserts), len(updates)
		return saveBatch(tx, inserts, updates)
	})
	if err != nil {
		return nil, err
	}
	stockIDs := make([]int32, len(updates))
	for i, st := range updates {
		stockIDs[i] = st.ID
	}
	s.InvalidateInventoryCaches(ctx, stockIDs...)
	return result, nil
}

// --- Stock Changes ---

// ImportStockChanges loads historical log entries. Rows carrying the Id of
// an existing entry overwrite its quantity and product; every other row is
// appended. Imported entries do not move Stock levels.
func (s *InventoryHandler) ImportStockChanges(ctx context.Context, rows []StockChangeRow) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, errs.InvalidArgument("no data found to import")
	}

	ids := make(map[int64]int, len(rows))
	productIDs := make([]int32, 0, len(rows))
	for i, row := range rows {
		if row.ProductID == 0 {
			return nil, errs.InvalidArgument("row %d: product id is required", i+2)
		}
		if row.Quantity == 0 {
			return nil, errs.InvalidArgument("row %d: quantity cannot be zero", i+2)
		}
		if row.ChangeDate.IsZero() {
			return nil, errs.InvalidArgument("row %d: change date is required", i+2)
		}
		if row.ID != 0 {
			if first, dup := ids[row.ID]; dup {
				return nil, errs.Conflict("rows %d and %d share id %d", first+2, i+2, row.ID)
			}
			ids[row.ID] = i
		}
		productIDs = append(productIDs, row.ProductID)
	}

	result := &ImportResult{Table: TableStockChanges}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		missing, err := missingIDs(tx, &models.Product{}, uniqueIDs(productIDs))
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return errs.NotFound("products %v do not exist", missing)
		}

		existingByID := make(map[int64]models.StockChange)
		if len(ids) > 0 {
			wanted := make([]int64, 0, len(ids))
			for id := range ids {
				wanted = append(wanted, id)
			}
			var current []models.StockChange
			if err := tx.Where("id IN ?", wanted).Find(&current).Error; err != nil {
				return errs.Internal(err, "failed to load stock changes")
			}
			for _, c := range current {
				existingByID[c.ID] = c
			}
		}

		var inserts, updates []models.StockChange
		for _, row := range rows {
			if existing, ok := existingByID[row.ID]; ok {
				existing.Quantity = row.Quantity
				existing.ProductID = row.ProductID
				updates = append(updates, existing)
				continue
			}
			inserts = append(inserts, models.StockChange{
				Quantity:   row.Quantity,
				ChangeDate: row.ChangeDate.UTC(),
				ProductID:  row.ProductID,
			})
		}

		result.Inserted, result.Updated = len(inserts), len(updates)
		return saveBatch(tx, inserts, updates)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
