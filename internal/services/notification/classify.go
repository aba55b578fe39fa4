package notification

import "warehouse-system/internal/database/models"

type StockInfo struct {
	ProductName   string `json:"product_name"`
	Stock         int32  `json:"stock"`
	Capacity      int32  `json:"capacity"`
	WarehouseName string `json:"warehouse_name"`
}

// StockEmailModel is rendered by the minimum_stock template.
type StockEmailModel struct {
	Name               string      `json:"name"`
	WarningStocks      []StockInfo `json:"warning_stocks"`
	NotificationStocks []StockInfo `json:"notification_stocks"`
}

type Classification struct {
	Warn   []models.Stock
	Notify []models.Stock
}

func (c Classification) Empty() bool {
	return len(c.Warn) == 0 && len(c.Notify) == 0
}

// below reports whether level is under pct percent of capacity.
func below(level, pct, capacity int32) bool {
	return int64(level)*100 < int64(pct)*int64(capacity)
}

// Classify picks the stocks the manager must hear about. Stocks under the
// warn threshold are warned unless a warning was already logged; the rest
// under the notify threshold are notified unless either kind was logged.
// Each product is queued at most once per kind, even when it runs low in
// several of the manager's warehouses. logs must already be limited to the
// dedup window.
func Classify(manager models.User, stocks []models.Stock, logs []models.EmailNotificationLog) Classification {
	assigned := make(map[int32]struct{}, len(manager.Warehouses))
	for _, w := range manager.Warehouses {
		assigned[w.ID] = struct{}{}
	}

	type seen struct{ warned, notified bool }
	history := make(map[int32]seen)
	for _, l := range logs {
		if l.RecipientEmail != manager.Email {
			continue
		}
		h := history[l.ProductID]
		switch l.Kind {
		case models.LowStockWarning:
			h.warned = true
		case models.LowStockNotification:
			h.notified = true
		}
		history[l.ProductID] = h
	}

	var c Classification
	for _, stock := range stocks {
		if _, ok := assigned[stock.WarehouseID]; !ok {
			continue
		}
		belowWarn := below(stock.StockInWarehouse, stock.WhenToWarn, stock.WarehouseCapacity)
		belowNotify := below(stock.StockInWarehouse, stock.WhenToNotify, stock.WarehouseCapacity)
		if !belowWarn && !belowNotify {
			continue
		}

		h := history[stock.ProductID]
		switch {
		case belowWarn:
			if !h.warned {
				c.Warn = append(c.Warn, stock)
				h.warned = true
			}
		case !h.notified && !h.warned:
			c.Notify = append(c.Notify, stock)
			h.notified = true
		}
		history[stock.ProductID] = h
	}
	return c
}

func stockInfos(stocks []models.Stock) []StockInfo {
	infos := make([]StockInfo, 0, len(stocks))
	for _, s := range stocks {
		info := StockInfo{Stock: s.StockInWarehouse, Capacity: s.WarehouseCapacity}
		if s.Product != nil {
			info.ProductName = s.Product.Name
		}
		if s.Warehouse != nil {
			info.WarehouseName = s.Warehouse.Name
		}
		infos = append(infos, info)
	}
	return infos
}

func emailFor(manager models.User, c Classification) (string, StockEmailModel) {
	subject := "Low stock level notice"
	if len(c.Warn) > 0 {
		subject = "Critical stock level warning"
	}
	return subject, StockEmailModel{
		Name:               manager.FirstName + " " + manager.LastName,
		WarningStocks:      stockInfos(c.Warn),
		NotificationStocks: stockInfos(c.Notify),
	}
}
