// Package gateway assembles the HTTP API served by cmd/gateway.
package gateway

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"gorm.io/gorm"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/gateway/handlers"
	"warehouse-system/internal/gateway/middleware"
	inventory "warehouse-system/internal/services/inventory/handler"
	users "warehouse-system/internal/services/user/handler"
)

type Deps struct {
	Inventory   *inventory.InventoryHandler
	Users       *users.UserHandler
	Health      *health.Server
	DB          *gorm.DB
	Logger      *zap.Logger
	RateLimit   string
	ServiceName string
}

func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.Inventory == nil || deps.Users == nil || deps.Health == nil || deps.DB == nil {
		return nil, errors.New("gateway: inventory, users, health and db are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.MaxMultipartMemory = 10 << 20

	if deps.ServiceName != "" {
		r.Use(otelgin.Middleware(deps.ServiceName))
	}
	r.Use(middleware.CORS())
	r.Use(middleware.Logger(logger))
	r.Use(gin.Recovery())
	if deps.RateLimit != "" {
		limit, err := middleware.RateLimit(deps.RateLimit)
		if err != nil {
			return nil, err
		}
		r.Use(limit)
	}

	userHandler := handlers.NewUserHTTPHandler(deps.Users, logger)
	inventoryHandler := handlers.NewInventoryHTTPHandler(deps.Inventory, logger)
	excelHandler := handlers.NewExcelHTTPHandler(deps.Inventory, logger)
	healthHandler := handlers.NewHealthHandler(deps.Health, deps.DB, handlers.ServiceInventory, handlers.ServiceWatcher)

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/register", userHandler.Register)
			auth.POST("/login", userHandler.Login)
			auth.PATCH("/reset-password", userHandler.ResetPassword)
			auth.POST("/send-verification-code", userHandler.SendVerificationCode)
			auth.POST("/verify-email", userHandler.VerifyEmail)
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		account := protected.Group("/account")
		{
			account.PATCH("/password", userHandler.UpdatePassword)
		}

		usersGroup := protected.Group("/users")
		{
			usersGroup.GET("", middleware.RequireRole(models.RoleAdmin), userHandler.ListUsers)
			usersGroup.GET("/:id", userHandler.GetUser)
			usersGroup.PATCH("/:id", userHandler.UpdateProfile)
			usersGroup.DELETE("/:id", middleware.RequireRole(models.RoleAdmin), userHandler.DeleteUser)
			usersGroup.POST("/:id/password-reset-token", userHandler.GeneratePasswordResetToken)
		}

		assignments := protected.Group("/assignments")
		assignments.Use(middleware.RequireRole(models.RoleAdmin))
		{
			assignments.POST("", userHandler.AssignWarehouse)
			assignments.DELETE("", userHandler.RemoveWarehouse)
		}

		products := protected.Group("/products")
		{
			products.GET("", inventoryHandler.ListProducts)
			products.POST("", inventoryHandler.CreateProduct)
			products.GET("/:id", inventoryHandler.GetProduct)
			products.PATCH("/:id", inventoryHandler.UpdateProduct)
			products.DELETE("/:id", inventoryHandler.DeleteProduct)
			products.GET("/ean/:ean", inventoryHandler.GetProductByEAN)
			products.GET("/warehouse/:warehouseId", inventoryHandler.ListProductsByWarehouse)
			products.GET("/most-sold/:warehouseId", inventoryHandler.MostSoldProduct)
			products.GET("/stuck/:warehouseId", inventoryHandler.StuckProducts)
		}

		warehouses := protected.Group("/warehouses")
		{
			warehouses.GET("", inventoryHandler.ListWarehouses)
			warehouses.POST("", inventoryHandler.CreateWarehouse)
			warehouses.GET("/:id", inventoryHandler.GetWarehouse)
			warehouses.PATCH("/:id", inventoryHandler.UpdateWarehouse)
			warehouses.DELETE("/:id", inventoryHandler.DeleteWarehouse)
			warehouses.GET("/:id/products-sold", inventoryHandler.ProductsSold)
			warehouses.GET("/:id/cost", inventoryHandler.WarehouseCost)
			warehouses.GET("/:id/daily-storage-cost", inventoryHandler.DailyStorageCost)
			warehouses.GET("/user/:userId", inventoryHandler.ListWarehousesForUser)
		}

		stocks := protected.Group("/stocks")
		{
			stocks.GET("", inventoryHandler.ListStocks)
			stocks.POST("", inventoryHandler.CreateStock)
			stocks.GET("/:id", inventoryHandler.GetStock)
			stocks.PATCH("/:id", inventoryHandler.UpdateStock)
			stocks.DELETE("/:id", inventoryHandler.DeleteStock)
			stocks.GET("/warehouse/:warehouseId", inventoryHandler.ListStocksByWarehouse)
			stocks.GET("/product/:productId", inventoryHandler.GetStockByProduct)
		}

		stockChanges := protected.Group("/stock-changes")
		{
			stockChanges.GET("", inventoryHandler.ListStockChanges)
			stockChanges.POST("", inventoryHandler.CreateStockChange)
			stockChanges.GET("/:id", inventoryHandler.GetStockChange)
			stockChanges.GET("/warehouse/:warehouseId", inventoryHandler.ListStockChangesByWarehouse)
			stockChanges.GET("/warehouse/:warehouseId/product/:productId", inventoryHandler.ListStockChangesByProduct)
			stockChanges.GET("/previous-week/:warehouseId", inventoryHandler.PreviousWeekSales)
			stockChanges.GET("/moving-average/:productId", inventoryHandler.MovingAverage)
		}

		excel := protected.Group("/excel")
		{
			excel.POST("/import/:table", middleware.RequireRole(models.RoleAdmin, models.RoleManager), excelHandler.Import)
			excel.GET("/export/:table", excelHandler.Export)
			excel.GET("/template/:table", excelHandler.Template)
		}
	}

	r.GET("/health", healthHandler.Health)
	r.GET("/health/detailed", healthHandler.Detailed)

	return r, nil
}
