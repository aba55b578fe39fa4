package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

// Service names registered on the gRPC health server.
const (
	ServiceInventory = "inventory"
	ServiceWatcher   = "notification.watcher"
)

type HealthHandler struct {
	health   *health.Server
	db       *gorm.DB
	services []string
}

func NewHealthHandler(hs *health.Server, db *gorm.DB, services ...string) *HealthHandler {
	return &HealthHandler{health: hs, db: db, services: services}
}

func (h *HealthHandler) status(ctx context.Context, service string) string {
	resp, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN.String()
	}
	return resp.GetStatus().String()
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK

	unavailableServices := []string{}
	for _, service := range h.services {
		if h.status(ctx, service) != healthpb.HealthCheckResponse_SERVING.String() {
			unavailableServices = append(unavailableServices, service)
		}
	}

	if len(unavailableServices) > 0 {
		status = "degraded"
		httpStatus = http.StatusPartialContent
	}

	c.JSON(httpStatus, gin.H{
		"status":               status,
		"message":              "Server is running",
		"unavailable_services": unavailableServices,
		"timestamp":            time.Now().UTC(),
	})
}

func (h *HealthHandler) Detailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	overallStatus := "healthy"
	services := make(map[string]interface{}, len(h.services)+1)
	for _, service := range h.services {
		s := h.status(ctx, service)
		if s != healthpb.HealthCheckResponse_SERVING.String() {
			overallStatus = "degraded"
		}
		services[service] = map[string]interface{}{"status": s}
	}

	database := map[string]interface{}{"status": "healthy"}
	if err := h.pingDB(ctx); err != nil {
		overallStatus = "degraded"
		database = map[string]interface{}{
			"status":  "unavailable",
			"message": err.Error(),
		}
	}
	services["database"] = database

	c.JSON(http.StatusOK, gin.H{
		"overall_status": overallStatus,
		"services":       services,
		"timestamp":      time.Now().UTC(),
	})
}

func (h *HealthHandler) pingDB(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
