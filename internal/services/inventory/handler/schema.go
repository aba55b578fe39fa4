package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"warehouse-system/internal/errs"
)

type Table string

const (
	TableProducts     Table = "Products"
	TableWarehouses   Table = "Warehouses"
	TableStocks       Table = "Stocks"
	TableStockChanges Table = "StockChanges"
)

func ParseTable(name string) (Table, error) {
	for _, t := range []Table{TableProducts, TableWarehouses, TableStocks, TableStockChanges} {
		if strings.EqualFold(name, string(t)) {
			return t, nil
		}
	}
	return "", errs.InvalidArgument("unsupported table %q", name)
}

// --- Rows ---

type ProductRow struct {
	EAN         string
	Name        string
	Description string
}

// WarehouseRow.ID is zero when the sheet has no Id value for the row.
type WarehouseRow struct {
	ID       int32
	Name     string
	Location string
}

type StockRow struct {
	StockInWarehouse  int32
	StockInStore      int32
	WarehouseCapacity int32
	StoreCapacity     int32
	ProductID         int32
	Currency          string
	Price             decimal.Decimal
	WarehouseID       int32
}

type StockChangeRow struct {
	ID         int64
	Quantity   int32
	ChangeDate time.Time
	ProductID  int32
}

// --- Schema ---

// Column binds a sheet column to a field of the row type T.
type Column[T any] struct {
	Name     string
	Optional bool
	Set      func(row *T, value string) error
	Get      func(row *T) string
}

// Schema lists the columns of one table in their template order.
type Schema[T any] struct {
	Table   Table
	Columns []Column[T]
}

func (s Schema[T]) Header() []string {
	header := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		header[i] = c.Name
	}
	return header
}

// Decode parses records using header to locate each column by name,
// ignoring case. An empty header falls back to the template order of the
// required columns. The first failing cell fails the whole batch.
func (s Schema[T]) Decode(header []string, records [][]string) ([]T, error) {
	index, err := s.columnIndex(header)
	if err != nil {
		return nil, err
	}

	rows := make([]T, 0, len(records))
	for r, record := range records {
		var row T
		for c, col := range s.Columns {
			pos, ok := index[c]
			if !ok {
				continue
			}
			value := ""
			if pos < len(record) {
				value = strings.TrimSpace(record[pos])
			}
			if value == "" && col.Optional {
				continue
			}
			if err := col.Set(&row, value); err != nil {
				return nil, errs.InvalidArgument("row %d, column %s: %v", r+2, col.Name, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s Schema[T]) columnIndex(header []string) (map[int]int, error) {
	index := make(map[int]int, len(s.Columns))

	if len(header) == 0 {
		pos := 0
		for c, col := range s.Columns {
			if col.Optional {
				continue
			}
			index[c] = pos
			pos++
		}
		return index, nil
	}

	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for c, col := range s.Columns {
		pos, ok := byName[strings.ToLower(col.Name)]
		if !ok {
			if col.Optional {
				continue
			}
			return nil, errs.InvalidArgument("%s sheet is missing column %s", s.Table, col.Name)
		}
		index[c] = pos
	}
	return index, nil
}

// Encode renders rows in template order.
func (s Schema[T]) Encode(rows []T) [][]string {
	out := make([][]string, len(rows))
	for i := range rows {
		record := make([]string, len(s.Columns))
		for c, col := range s.Columns {
			record[c] = col.Get(&rows[i])
		}
		out[i] = record
	}
	return out
}

// --- Parsers ---

func parseInt32(value string) (int32, error) {
	n, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		// Spreadsheets often store whole numbers as floats.
		f, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil || f != float64(int32(f)) {
			return 0, fmt.Errorf("%q is not a whole number", value)
		}
		return int32(f), nil
	}
	return int32(n), nil
}

func parseInt64(value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a whole number", value)
	}
	return n, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02",
	"2006.01.02 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1/2/06 15:04",
}

// parseDate accepts common textual layouts and Excel serial dates. Dates
// without a zone are taken as UTC.
func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", value)
}

func formatInt[N int32 | int64](n N) string {
	return strconv.FormatInt(int64(n), 10)
}

// --- Table Schemas ---

var ProductSchema = Schema[ProductRow]{
	Table: TableProducts,
	Columns: []Column[ProductRow]{
		{
			Name: "EAN",
			Set:  func(r *ProductRow, v string) error { r.EAN = v; return nil },
			Get:  func(r *ProductRow) string { return r.EAN },
		},
		{
			Name: "Name",
			Set:  func(r *ProductRow, v string) error { r.Name = v; return nil },
			Get:  func(r *ProductRow) string { return r.Name },
		},
		{
			Name: "Description",
			Set:  func(r *ProductRow, v string) error { r.Description = v; return nil },
			Get:  func(r *ProductRow) string { return r.Description },
		},
	},
}

var WarehouseSchema = Schema[WarehouseRow]{
	Table: TableWarehouses,
	Columns: []Column[WarehouseRow]{
		{
			Name:     "Id",
			Optional: true,
			Set: func(r *WarehouseRow, v string) (err error) {
				r.ID, err = parseInt32(v)
				return err
			},
			Get: func(r *WarehouseRow) string { return formatInt(r.ID) },
		},
		{
			Name: "Name",
			Set:  func(r *WarehouseRow, v string) error { r.Name = v; return nil },
			Get:  func(r *WarehouseRow) string { return r.Name },
		},
		{
			Name: "Location",
			Set:  func(r *WarehouseRow, v string) error { r.Location = v; return nil },
			Get:  func(r *WarehouseRow) string { return r.Location },
		},
	},
}

var StockSchema = Schema[StockRow]{
	Table: TableStocks,
	Columns: []Column[StockRow]{
		int32Column("StockInWarehouse", func(r *StockRow) *int32 { return &r.StockInWarehouse }),
		int32Column("StockInStore", func(r *StockRow) *int32 { return &r.StockInStore }),
		int32Column("WarehouseCapacity", func(r *StockRow) *int32 { return &r.WarehouseCapacity }),
		int32Column("StoreCapacity", func(r *StockRow) *int32 { return &r.StoreCapacity }),
		int32Column("ProductId", func(r *StockRow) *int32 { return &r.ProductID }),
		{
			Name: "Currency",
			Set:  func(r *StockRow, v string) error { r.Currency = v; return nil },
			Get:  func(r *StockRow) string { return r.Currency },
		},
		{
			Name: "Price",
			Set: func(r *StockRow, v string) error {
				d, err := decimal.NewFromString(v)
				if err != nil {
					return fmt.Errorf("%q is not a number", v)
				}
				r.Price = d
				return nil
			},
			Get: func(r *StockRow) string { return r.Price.String() },
		},
		int32Column("WarehouseId", func(r *StockRow) *int32 { return &r.WarehouseID }),
	},
}

var StockChangeSchema = Schema[StockChangeRow]{
	Table: TableStockChanges,
	Columns: []Column[StockChangeRow]{
		{
			Name:     "Id",
			Optional: true,
			Set: func(r *StockChangeRow, v string) (err error) {
				r.ID, err = parseInt64(v)
				return err
			},
			Get: func(r *StockChangeRow) string { return formatInt(r.ID) },
		},
		{
			Name: "Quantity",
			Set: func(r *StockChangeRow, v string) (err error) {
				r.Quantity, err = parseInt32(v)
				return err
			},
			Get: func(r *StockChangeRow) string { return formatInt(r.Quantity) },
		},
		{
			Name: "ChangeDate",
			Set: func(r *StockChangeRow, v string) (err error) {
				r.ChangeDate, err = parseDate(v)
				return err
			},
			Get: func(r *StockChangeRow) string { return r.ChangeDate.UTC().Format(time.RFC3339) },
		},
		{
			Name: "ProductId",
			Set: func(r *StockChangeRow, v string) (err error) {
				r.ProductID, err = parseInt32(v)
				return err
			},
			Get: func(r *StockChangeRow) string { return formatInt(r.ProductID) },
		},
	},
}

func int32Column(name string, field func(*StockRow) *int32) Column[StockRow] {
	return Column[StockRow]{
		Name: name,
		Set: func(r *StockRow, v string) (err error) {
			*field(r), err = parseInt32(v)
			return err
		},
		Get: func(r *StockRow) string { return formatInt(*field(r)) },
	}
}
