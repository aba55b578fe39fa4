package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
	"warehouse-system/internal/events"
)

const (
	INVENTORY_CACHE_PREFIX = "inventory:"
	STOCK_CACHE_PREFIX     = "inventory:stock:"
	PRODUCT_CACHE_PREFIX   = "inventory:product:"
	STOCKS_CACHE_KEY       = "inventory:stocks"
	PRODUCTS_CACHE_KEY     = "inventory:products"
	WAREHOUSE_CACHE_KEY    = "inventory:warehouses"
	CACHE_TTL_SHORT        = 5 * time.Minute
	CACHE_TTL_MEDIUM       = 30 * time.Minute
	CACHE_TTL_LONG         = 2 * time.Hour
)

// --- Handler ---

type InventoryHandler struct {
	db        *gorm.DB
	redis     *redis.Client
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time

	stockChanges metric.Int64Counter
}

type Option func(*InventoryHandler)

// WithPublisher emits a StockChangedEvent after every committed stock change.
func WithPublisher(p events.Publisher) Option {
	return func(s *InventoryHandler) {
		s.publisher = p
	}
}

// WithClock replaces the wall clock used by date based analytics.
func WithClock(now func() time.Time) Option {
	return func(s *InventoryHandler) {
		s.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *InventoryHandler) {
		s.logger = logger
	}
}

func NewInventoryHandler(db *gorm.DB, redisClient *redis.Client, opts ...Option) *InventoryHandler {
	s := &InventoryHandler{
		db:     db,
		redis:  redisClient,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	counter, err := otel.Meter("warehouse-system/inventory").Int64Counter(
		"inventory.stock_changes",
		metric.WithDescription("Committed stock changes"),
	)
	if err != nil {
		s.logger.Warn("Failed to create stock change counter", zap.Error(err))
		counter = noop.Int64Counter{}
	}
	s.stockChanges = counter

	return s
}

func (s *InventoryHandler) InvalidateInventoryCaches(ctx context.Context, stockIDs ...int32) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, STOCKS_CACHE_KEY, PRODUCTS_CACHE_KEY, WAREHOUSE_CACHE_KEY)

	for _, id := range stockIDs {
		_ = s.redis.Del(ctx, fmt.Sprintf("%s%d", STOCK_CACHE_PREFIX, id))
	}
}

func (s *InventoryHandler) invalidateProduct(ctx context.Context, productID int32) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, PRODUCTS_CACHE_KEY, fmt.Sprintf("%s%d", PRODUCT_CACHE_PREFIX, productID))
}

// --- Cache Helpers ---

func (s *InventoryHandler) getCached(ctx context.Context, key string, dest interface{}) bool {
	if s.redis == nil {
		return false
	}
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("Redis error on GET, falling back to DB", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		s.logger.Warn("Discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *InventoryHandler) setCached(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	jsonData, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		s.logger.Warn("Failed to set cache", zap.String("key", key), zap.Error(err))
	}
}

// dbError maps gorm failures onto the service error taxonomy.
func dbError(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.NotFound("%s", notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errs.Conflict("duplicate record")
	default:
		return errs.Internal(err, "database error")
	}
}

// stockIDsWhere returns the ids of stocks matching query. Writes that cascade
// into or embed in stocks use it to drop the per-stock cache entries.
func stockIDsWhere(tx *gorm.DB, query string, args ...interface{}) ([]int32, error) {
	var ids []int32
	if err := tx.Model(&models.Stock{}).Where(query, args...).Pluck("id", &ids).Error; err != nil {
		return nil, errs.Internal(err, "failed to load stock ids")
	}
	return ids, nil
}

func exists(tx *gorm.DB, model interface{}, query string, args ...interface{}) (bool, error) {
	var n int64
	if err := tx.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return false, errs.Internal(err, "database error")
	}
	return n > 0, nil
}
