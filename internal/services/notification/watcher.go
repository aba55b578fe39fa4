package notification

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
)

const (
	defaultWatchInterval = time.Hour
	defaultWatchWindow   = 24 * time.Hour
	logBatchSize         = 100
)

type ScanReport struct {
	Managers int `json:"managers"`
	Emails   int `json:"emails"`
	Warned   int `json:"warned"`
	Notified int `json:"notified"`
	Failed   int `json:"failed"`
}

// Watcher periodically scans stock levels and emails warehouse managers about
// stocks below their thresholds, at most once per product and kind within
// the dedup window.
type Watcher struct {
	db       *gorm.DB
	sender   Sender
	logger   *zap.Logger
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	onScan   func(ScanReport, error)

	tracer trace.Tracer
	sent   metric.Int64Counter
}

type WatcherOption func(*Watcher)

func WithWatchClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) {
		w.now = now
	}
}

// WithScanHook is called after every scan, including failed ones.
func WithScanHook(fn func(ScanReport, error)) WatcherOption {
	return func(w *Watcher) {
		w.onScan = fn
	}
}

func NewWatcher(db *gorm.DB, sender Sender, interval, window time.Duration, logger *zap.Logger, opts ...WatcherOption) *Watcher {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	if window <= 0 {
		window = defaultWatchWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		db:       db,
		sender:   sender,
		logger:   logger,
		interval: interval,
		window:   window,
		now:      time.Now,
		tracer:   otel.Tracer("warehouse-system/notification"),
	}
	for _, opt := range opts {
		opt(w)
	}

	counter, err := otel.Meter("warehouse-system/notification").Int64Counter(
		"notification.low_stock_emails",
		metric.WithDescription("Low stock emails sent to managers"),
	)
	if err != nil {
		logger.Warn("Failed to create email counter", zap.Error(err))
		counter = noop.Int64Counter{}
	}
	w.sent = counter

	return w
}

// Run scans, then waits one interval, until ctx is cancelled. A scan in
// progress is never interrupted; cancellation is observed between scans.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("Stock watcher started",
		zap.Duration("interval", w.interval),
		zap.Duration("window", w.window))

	for {
		if ctx.Err() != nil {
			break
		}

		report, err := w.Scan(context.WithoutCancel(ctx))
		if err != nil {
			w.logger.Error("Stock scan failed, retrying next tick", zap.Error(err))
		} else {
			w.logger.Info("Stock scan completed",
				zap.Int("managers", report.Managers),
				zap.Int("emails", report.Emails),
				zap.Int("warned", report.Warned),
				zap.Int("notified", report.Notified),
				zap.Int("failed", report.Failed))
		}
		if w.onScan != nil {
			w.onScan(report, err)
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	w.logger.Info("Stock watcher stopped")
}

// Scan runs one complete pass. New log entries are written in a single
// transaction; if that fails, none are kept and the next scan retries.
func (w *Watcher) Scan(ctx context.Context) (ScanReport, error) {
	ctx, span := w.tracer.Start(ctx, "notification.scan")
	defer span.End()

	var report ScanReport
	now := w.now().UTC()
	db := w.db.WithContext(ctx)

	var stocks []models.Stock
	if err := db.Preload("Product").Preload("Warehouse").Find(&stocks).Error; err != nil {
		return report, w.fail(span, errs.Internal(err, "failed to load stocks"))
	}

	var managers []models.User
	if err := db.Preload("Warehouses").Where("role = ?", models.RoleManager).Order("id").Find(&managers).Error; err != nil {
		return report, w.fail(span, errs.Internal(err, "failed to load managers"))
	}

	var logs []models.EmailNotificationLog
	if err := db.Where("sent_date >= ?", now.Add(-w.window)).Find(&logs).Error; err != nil {
		return report, w.fail(span, errs.Internal(err, "failed to load notification log"))
	}

	report.Managers = len(managers)
	var entries []models.EmailNotificationLog
	for _, manager := range managers {
		c := Classify(manager, stocks, logs)
		if c.Empty() {
			continue
		}

		subject, model := emailFor(manager, c)
		if err := w.sender.Send(ctx, manager.Email, subject, TemplateMinimumStock, model); err != nil {
			report.Failed++
			w.logger.Warn("Failed to send low stock email",
				zap.Int32("user_id", manager.ID),
				zap.String("email", manager.Email),
				zap.Error(err))
			continue
		}

		report.Emails++
		report.Warned += len(c.Warn)
		report.Notified += len(c.Notify)
		entries = append(entries, logEntries(manager.Email, models.LowStockWarning, c.Warn, now)...)
		entries = append(entries, logEntries(manager.Email, models.LowStockNotification, c.Notify, now)...)
	}

	if len(entries) > 0 {
		err := db.Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&entries, logBatchSize).Error
		})
		if err != nil {
			return report, w.fail(span, errs.Internal(err, "failed to record notifications"))
		}
	}

	if report.Emails > 0 {
		w.sent.Add(ctx, int64(report.Emails))
	}
	span.SetAttributes(
		attribute.Int("managers", report.Managers),
		attribute.Int("emails", report.Emails),
		attribute.Int("failed", report.Failed),
	)
	return report, nil
}

func (w *Watcher) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, errs.Message(err))
	return err
}

func logEntries(recipient string, kind models.NotificationKind, stocks []models.Stock, at time.Time) []models.EmailNotificationLog {
	entries := make([]models.EmailNotificationLog, 0, len(stocks))
	for _, s := range stocks {
		entries = append(entries, models.EmailNotificationLog{
			RecipientEmail: recipient,
			Kind:           kind,
			ProductID:      s.ProductID,
			SentDate:       at,
		})
	}
	return entries
}
