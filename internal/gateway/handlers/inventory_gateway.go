package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	inventory "warehouse-system/internal/services/inventory/handler"
)

type InventoryHTTPHandler struct {
	inventory *inventory.InventoryHandler
	logger    *zap.Logger
}

func NewInventoryHTTPHandler(svc *inventory.InventoryHandler, logger *zap.Logger) *InventoryHTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryHTTPHandler{
		inventory: svc,
		logger:    logger,
	}
}

func (h *InventoryHTTPHandler) idParam(c *gin.Context, param, label string) (int32, bool) {
	id, err := parseIntParam(c, param)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid "+label+" ID"))
		return 0, false
	}
	return id, true
}

// --- Products ---

func (h *InventoryHTTPHandler) CreateProduct(c *gin.Context) {
	var req inventory.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.inventory.CreateProduct(ctx, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Product created successfully", product))
}

func (h *InventoryHTTPHandler) GetProduct(c *gin.Context) {
	id, ok := h.idParam(c, "id", "product")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.inventory.GetProduct(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product retrieved successfully", product))
}

func (h *InventoryHTTPHandler) ListProducts(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	products, err := h.inventory.ListProducts(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Products retrieved successfully", products, ListMeta{Total: len(products)}))
}

func (h *InventoryHTTPHandler) GetProductByEAN(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.inventory.ProductByEAN(ctx, c.Param("ean"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product retrieved successfully", product))
}

func (h *InventoryHTTPHandler) ListProductsByWarehouse(c *gin.Context) {
	warehouseID, ok := h.idParam(c, "warehouseId", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	products, err := h.inventory.ProductsByWarehouse(ctx, warehouseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Products retrieved successfully", products, ListMeta{Total: len(products)}))
}

func (h *InventoryHTTPHandler) UpdateProduct(c *gin.Context) {
	id, ok := h.idParam(c, "id", "product")
	if !ok {
		return
	}

	var req inventory.ProductPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.inventory.UpdateProduct(ctx, id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product updated successfully", product))
}

func (h *InventoryHTTPHandler) DeleteProduct(c *gin.Context) {
	id, ok := h.idParam(c, "id", "product")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.inventory.DeleteProduct(ctx, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Product deleted successfully", nil))
}

func (h *InventoryHTTPHandler) MostSoldProduct(c *gin.Context) {
	warehouseID, ok := h.idParam(c, "warehouseId", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.inventory.MostSoldProduct(ctx, warehouseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Most sold product retrieved successfully", product))
}

func (h *InventoryHTTPHandler) StuckProducts(c *gin.Context) {
	warehouseID, ok := h.idParam(c, "warehouseId", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	products, err := h.inventory.StuckProducts(ctx, warehouseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Stuck products retrieved successfully", products, ListMeta{Total: len(products)}))
}

// --- Warehouses ---

func (h *InventoryHTTPHandler) CreateWarehouse(c *gin.Context) {
	var req inventory.WarehouseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	warehouse, err := h.inventory.CreateWarehouse(ctx, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Warehouse created successfully", warehouse))
}

func (h *InventoryHTTPHandler) GetWarehouse(c *gin.Context) {
	id, ok := h.idParam(c, "id", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	warehouse, err := h.inventory.GetWarehouse(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Warehouse retrieved successfully", warehouse))
}

func (h *InventoryHTTPHandler) ListWarehouses(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	warehouses, err := h.inventory.ListWarehouses(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Warehouses retrieved successfully", warehouses, ListMeta{Total: len(warehouses)}))
}

func (h *InventoryHTTPHandler) ListWarehousesForUser(c *gin.Context) {
	userID, ok := h.idParam(c, "userId", "user")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	warehouses, err := h.inventory.WarehousesForUser(ctx, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Warehouses retrieved successfully", warehouses, ListMeta{Total: len(warehouses)}))
}

func (h *InventoryHTTPHandler) UpdateWarehouse(c *gin.Context) {
	id, ok := h.idParam(c, "id", "warehouse")
	if !ok {
		return
	}

	var req inventory.WarehousePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	warehouse, err := h.inventory.UpdateWarehouse(ctx, id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Warehouse updated successfully", warehouse))
}

func (h *InventoryHTTPHandler) DeleteWarehouse(c *gin.Context) {
	id, ok := h.idParam(c, "id", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.inventory.DeleteWarehouse(ctx, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Warehouse deleted successfully", nil))
}

func (h *InventoryHTTPHandler) ProductsSold(c *gin.Context) {
	id, ok := h.idParam(c, "id", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sales, err := h.inventory.ProductsSold(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Products sold retrieved successfully", sales))
}

func (h *InventoryHTTPHandler) WarehouseCost(c *gin.Context) {
	id, ok := h.idParam(c, "id", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	history, err := h.inventory.WarehouseCost(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Warehouse cost retrieved successfully", history))
}

func (h *InventoryHTTPHandler) DailyStorageCost(c *gin.Context) {
	id, ok := h.idParam(c, "id", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	costs, err := h.inventory.DailyStorageCost(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Daily storage cost retrieved successfully", costs))
}

// --- Stocks ---

func (h *InventoryHTTPHandler) CreateStock(c *gin.Context) {
	var req inventory.StockInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	stock, err := h.inventory.CreateStock(ctx, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Stock created successfully", stock))
}

func (h *InventoryHTTPHandler) GetStock(c *gin.Context) {
	id, ok := h.idParam(c, "id", "stock")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	stock, err := h.inventory.GetStock(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Stock retrieved successfully", stock))
}

func (h *InventoryHTTPHandler) ListStocks(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	stocks, err := h.inventory.ListStocks(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Stocks retrieved successfully", stocks, ListMeta{Total: len(stocks)}))
}

func (h *InventoryHTTPHandler) ListStocksByWarehouse(c *gin.Context) {
	warehouseID, ok := h.idParam(c, "warehouseId", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	stocks, err := h.inventory.StocksByWarehouse(ctx, warehouseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Stocks retrieved successfully", stocks, ListMeta{Total: len(stocks)}))
}

func (h *InventoryHTTPHandler) GetStockByProduct(c *gin.Context) {
	productID, ok := h.idParam(c, "productId", "product")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	stock, err := h.inventory.StockByProduct(ctx, productID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Stock retrieved successfully", stock))
}

func (h *InventoryHTTPHandler) UpdateStock(c *gin.Context) {
	id, ok := h.idParam(c, "id", "stock")
	if !ok {
		return
	}

	var req inventory.StockPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	stock, err := h.inventory.UpdateStock(ctx, id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Stock updated successfully", stock))
}

func (h *InventoryHTTPHandler) DeleteStock(c *gin.Context) {
	id, ok := h.idParam(c, "id", "stock")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.inventory.DeleteStock(ctx, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Stock deleted successfully", nil))
}

// --- Stock changes ---

func (h *InventoryHTTPHandler) CreateStockChange(c *gin.Context) {
	var req inventory.StockChangeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	change, err := h.inventory.CreateStockChange(ctx, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Stock change recorded successfully", change))
}

func (h *InventoryHTTPHandler) GetStockChange(c *gin.Context) {
	id, err := parseInt64Param(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid stock change ID"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	change, err := h.inventory.GetStockChange(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Stock change retrieved successfully", change))
}

func (h *InventoryHTTPHandler) ListStockChanges(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()

	changes, err := h.inventory.ListStockChanges(ctx)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Stock changes retrieved successfully", changes, ListMeta{Total: len(changes)}))
}

func (h *InventoryHTTPHandler) ListStockChangesByWarehouse(c *gin.Context) {
	warehouseID, ok := h.idParam(c, "warehouseId", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	changes, err := h.inventory.StockChangesByWarehouse(ctx, warehouseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Stock changes retrieved successfully", changes, ListMeta{Total: len(changes)}))
}

func (h *InventoryHTTPHandler) ListStockChangesByProduct(c *gin.Context) {
	warehouseID, ok := h.idParam(c, "warehouseId", "warehouse")
	if !ok {
		return
	}
	productID, ok := h.idParam(c, "productId", "product")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	changes, err := h.inventory.StockChangesByProduct(ctx, productID, warehouseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Stock changes retrieved successfully", changes, ListMeta{Total: len(changes)}))
}

func (h *InventoryHTTPHandler) PreviousWeekSales(c *gin.Context) {
	warehouseID, ok := h.idParam(c, "warehouseId", "warehouse")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	sales, err := h.inventory.PreviousWeekSales(ctx, warehouseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Previous week sales retrieved successfully", sales, ListMeta{Total: len(sales)}))
}

// MovingAverage expects ?warehouse_id=&window= alongside the product path
// parameter.
func (h *InventoryHTTPHandler) MovingAverage(c *gin.Context) {
	productID, ok := h.idParam(c, "productId", "product")
	if !ok {
		return
	}
	warehouseID, ok := parseIntQuery(c, "warehouse_id")
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("warehouse_id query parameter is required"))
		return
	}
	window, ok := parseIntQuery(c, "window")
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse("window query parameter is required"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	avg, err := h.inventory.MovingAverageSaleQuantity(ctx, productID, warehouseID, int(window))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Moving average calculated successfully", gin.H{
		"product_id":     productID,
		"warehouse_id":   warehouseID,
		"window":         window,
		"moving_average": avg,
	}))
}
