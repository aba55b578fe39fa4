package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"warehouse-system/internal/database/dbtest"
	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
	"warehouse-system/internal/events"
)

type sentEmail struct {
	recipient string
	subject   string
	template  string
	model     interface{}
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *fakeSender) Send(_ context.Context, recipient, subject, template string, model interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEmail{recipient, subject, template, model})
	return nil
}

type seeded struct {
	manager   models.User
	product   models.Product
	warehouse models.Warehouse
	stock     models.Stock
}

func seed(t *testing.T, db *gorm.DB, level, warn, notify int32) seeded {
	t.Helper()

	warehouse := models.Warehouse{Name: "Main", Location: "Zagreb"}
	require.NoError(t, db.Create(&warehouse).Error)

	product := models.Product{EAN: "590", Name: "Coffee", Image: models.DefaultProductImage}
	require.NoError(t, db.Create(&product).Error)

	stock := models.Stock{
		ProductID:         product.ID,
		WarehouseID:       warehouse.ID,
		StockInWarehouse:  level,
		WarehouseCapacity: 100,
		StoreCapacity:     10,
		WhenToWarn:        warn,
		WhenToNotify:      notify,
	}
	require.NoError(t, db.Create(&stock).Error)

	manager := models.User{
		FirstName:    "Ana",
		LastName:     "Horvat",
		Email:        "ana@example.com",
		PasswordHash: "x",
		Role:         models.RoleManager,
		Warehouses:   []models.Warehouse{warehouse},
	}
	require.NoError(t, db.Create(&manager).Error)

	analyst := models.User{
		FirstName:    "Ivo",
		LastName:     "Kovac",
		Email:        "ivo@example.com",
		PasswordHash: "x",
		Role:         models.RoleAnalyst,
		Warehouses:   []models.Warehouse{warehouse},
	}
	require.NoError(t, db.Create(&analyst).Error)

	return seeded{manager: manager, product: product, warehouse: warehouse, stock: stock}
}

func TestClassify(t *testing.T) {
	manager := models.User{Email: "m@example.com", Warehouses: []models.Warehouse{{ID: 1}}}
	stock := func(productID, warehouseID, level int32) models.Stock {
		return models.Stock{
			ProductID:         productID,
			WarehouseID:       warehouseID,
			StockInWarehouse:  level,
			WarehouseCapacity: 100,
			WhenToWarn:        10,
			WhenToNotify:      20,
		}
	}

	t.Run("below warn is warned only", func(t *testing.T) {
		c := Classify(manager, []models.Stock{stock(1, 1, 5)}, nil)
		require.Len(t, c.Warn, 1)
		assert.Empty(t, c.Notify)
	})

	t.Run("between thresholds is notified", func(t *testing.T) {
		c := Classify(manager, []models.Stock{stock(1, 1, 15)}, nil)
		assert.Empty(t, c.Warn)
		assert.Len(t, c.Notify, 1)
	})

	t.Run("at threshold is not low", func(t *testing.T) {
		c := Classify(manager, []models.Stock{stock(1, 1, 20)}, nil)
		assert.True(t, c.Empty())
	})

	t.Run("unassigned warehouse is ignored", func(t *testing.T) {
		c := Classify(manager, []models.Stock{stock(1, 2, 0)}, nil)
		assert.True(t, c.Empty())
	})

	t.Run("logged warning suppresses warn and notify", func(t *testing.T) {
		logs := []models.EmailNotificationLog{{RecipientEmail: manager.Email, ProductID: 1, Kind: models.LowStockWarning}}
		assert.True(t, Classify(manager, []models.Stock{stock(1, 1, 5)}, logs).Empty())
		assert.True(t, Classify(manager, []models.Stock{stock(1, 1, 15)}, logs).Empty())
	})

	t.Run("logged notification does not suppress a warning", func(t *testing.T) {
		logs := []models.EmailNotificationLog{{RecipientEmail: manager.Email, ProductID: 1, Kind: models.LowStockNotification}}
		c := Classify(manager, []models.Stock{stock(1, 1, 5)}, logs)
		assert.Len(t, c.Warn, 1)
	})

	t.Run("other recipients' logs do not count", func(t *testing.T) {
		logs := []models.EmailNotificationLog{{RecipientEmail: "other@example.com", ProductID: 1, Kind: models.LowStockWarning}}
		c := Classify(manager, []models.Stock{stock(1, 1, 5)}, logs)
		assert.Len(t, c.Warn, 1)
	})

	t.Run("percentages are exact", func(t *testing.T) {
		s := models.Stock{ProductID: 1, WarehouseID: 1, StockInWarehouse: 3, WarehouseCapacity: 7, WhenToWarn: 43, WhenToNotify: 50}
		// 3/7 is 42.86 percent.
		c := Classify(manager, []models.Stock{s}, nil)
		assert.Len(t, c.Warn, 1)
	})

	t.Run("product low in two warehouses is queued once", func(t *testing.T) {
		both := models.User{Email: manager.Email, Warehouses: []models.Warehouse{{ID: 1}, {ID: 2}}}

		c := Classify(both, []models.Stock{stock(1, 1, 5), stock(1, 2, 3)}, nil)
		require.Len(t, c.Warn, 1)
		assert.Equal(t, int32(1), c.Warn[0].WarehouseID)
		assert.Empty(t, c.Notify)

		c = Classify(both, []models.Stock{stock(1, 1, 15), stock(1, 2, 12)}, nil)
		assert.Empty(t, c.Warn)
		assert.Len(t, c.Notify, 1)
	})
}

func TestScanWarnsOnceWithinWindow(t *testing.T) {
	db := dbtest.New(t)
	fx := seed(t, db, 5, 10, 20)
	sender := &fakeSender{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	w := NewWatcher(db, sender, time.Hour, 24*time.Hour, nil, WithWatchClock(clock))
	ctx := context.Background()

	report, err := w.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Managers)
	assert.Equal(t, 1, report.Emails)
	assert.Equal(t, 1, report.Warned)
	assert.Equal(t, 0, report.Notified)

	require.Len(t, sender.sent, 1)
	email := sender.sent[0]
	assert.Equal(t, fx.manager.Email, email.recipient)
	assert.Equal(t, TemplateMinimumStock, email.template)
	assert.Equal(t, "Critical stock level warning", email.subject)
	model, ok := email.model.(StockEmailModel)
	require.True(t, ok)
	assert.Equal(t, "Ana Horvat", model.Name)
	require.Len(t, model.WarningStocks, 1)
	assert.Equal(t, StockInfo{ProductName: "Coffee", Stock: 5, Capacity: 100, WarehouseName: "Main"}, model.WarningStocks[0])
	assert.Empty(t, model.NotificationStocks)

	var logs []models.EmailNotificationLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LowStockWarning, logs[0].Kind)
	assert.Equal(t, fx.product.ID, logs[0].ProductID)

	now = now.Add(time.Hour)
	report, err = w.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Emails)
	assert.Len(t, sender.sent, 1)

	// Once the window has passed the warning is repeated.
	now = now.Add(24 * time.Hour)
	report, err = w.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Emails)
}

func TestScanSendFailureLeavesNoLog(t *testing.T) {
	db := dbtest.New(t)
	seed(t, db, 15, 10, 20)
	sender := &fakeSender{err: errors.New("smtp down")}
	w := NewWatcher(db, sender, time.Hour, 24*time.Hour, nil)
	ctx := context.Background()

	report, err := w.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	var count int64
	require.NoError(t, db.Model(&models.EmailNotificationLog{}).Count(&count).Error)
	assert.Zero(t, count)

	sender.err = nil
	report, err = w.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Low stock level notice", sender.sent[0].subject)
}

func TestRunSurvivesFailedScansAndStopsOnCancel(t *testing.T) {
	db := dbtest.New(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	var scans, failures atomic.Int32
	hook := func(_ ScanReport, err error) {
		scans.Add(1)
		if err != nil {
			failures.Add(1)
		}
	}
	w := NewWatcher(db, &fakeSender{}, 5*time.Millisecond, time.Hour, nil, WithScanHook(hook))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return failures.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
	assert.Equal(t, scans.Load(), failures.Load())
}

func TestEmailServiceSend(t *testing.T) {
	db := dbtest.New(t)
	fx := seed(t, db, 50, 10, 20)
	pub := &recordingPublisher{}
	svc := NewEmailService(db, pub, nil)
	ctx := context.Background()

	err := svc.Send(ctx, "nobody@example.com", "Hi", TemplateWelcome, nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Empty(t, pub.events)

	require.NoError(t, svc.Send(ctx, fx.manager.Email, "Hi", TemplateWelcome, map[string]string{"name": "Ana"}))
	require.Len(t, pub.events, 1)
	evt, ok := pub.events[0].(events.EmailRequestedEvent)
	require.True(t, ok)
	assert.Equal(t, fx.manager.Email, evt.Recipient)
	assert.Equal(t, TemplateWelcome, evt.Template)
	assert.NotEmpty(t, evt.EventID)

	// Without a publisher the email is dropped, not failed.
	require.NoError(t, NewEmailService(db, nil, nil).Send(ctx, fx.manager.Email, "Hi", TemplateWelcome, nil))
}

type recordingPublisher struct {
	events []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event interface{}) error {
	p.events = append(p.events, event)
	return nil
}
