package handler

import (
	"context"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
)

// Template returns the header row a sheet for table must carry.
func Template(table Table) ([]string, error) {
	switch table {
	case TableProducts:
		return ProductSchema.Header(), nil
	case TableWarehouses:
		return WarehouseSchema.Header(), nil
	case TableStocks:
		return StockSchema.Header(), nil
	case TableStockChanges:
		return StockChangeSchema.Header(), nil
	}
	return nil, errs.InvalidArgument("unsupported table %q", table)
}

// Export renders every row of table in template column order.
func (s *InventoryHandler) Export(ctx context.Context, table Table) ([]string, [][]string, error) {
	db := s.db.WithContext(ctx).Order("id")

	switch table {
	case TableProducts:
		var products []models.Product
		if err := db.Find(&products).Error; err != nil {
			return nil, nil, errs.Internal(err, "failed to export products")
		}
		rows := make([]ProductRow, len(products))
		for i, p := range products {
			rows[i] = ProductRow{EAN: p.EAN, Name: p.Name, Description: p.Description}
		}
		return ProductSchema.Header(), ProductSchema.Encode(rows), nil

	case TableWarehouses:
		var warehouses []models.Warehouse
		if err := db.Find(&warehouses).Error; err != nil {
			return nil, nil, errs.Internal(err, "failed to export warehouses")
		}
		rows := make([]WarehouseRow, len(warehouses))
		for i, w := range warehouses {
			rows[i] = WarehouseRow{ID: w.ID, Name: w.Name, Location: w.Location}
		}
		return WarehouseSchema.Header(), WarehouseSchema.Encode(rows), nil

	case TableStocks:
		var stocks []models.Stock
		if err := db.Find(&stocks).Error; err != nil {
			return nil, nil, errs.Internal(err, "failed to export stocks")
		}
		rows := make([]StockRow, len(stocks))
		for i, st := range stocks {
			rows[i] = StockRow{
				StockInWarehouse:  st.StockInWarehouse,
				StockInStore:      st.StockInStore,
				WarehouseCapacity: st.WarehouseCapacity,
				StoreCapacity:     st.StoreCapacity,
				ProductID:         st.ProductID,
				Currency:          st.Currency,
				Price:             st.Price,
				WarehouseID:       st.WarehouseID,
			}
		}
		return StockSchema.Header(), StockSchema.Encode(rows), nil

	case TableStockChanges:
		var changes []models.StockChange
		if err := db.Find(&changes).Error; err != nil {
			return nil, nil, errs.Internal(err, "failed to export stock changes")
		}
		rows := make([]StockChangeRow, len(changes))
		for i, c := range changes {
			rows[i] = StockChangeRow{ID: c.ID, Quantity: c.Quantity, ChangeDate: c.ChangeDate, ProductID: c.ProductID}
		}
		return StockChangeSchema.Header(), StockChangeSchema.Encode(rows), nil
	}

	return nil, nil, errs.InvalidArgument("unsupported table %q", table)
}
