package handler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/errs"
)

func TestMovingAverageSaleQuantity(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "200", "Coffee")
	w := f.warehouse(t, "Main", "Zagreb")
	f.stock(t, p.ID, w.ID, 50, 100)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	f.change(t, p.ID, -9, base)
	f.change(t, p.ID, -2, base.Add(24*time.Hour))
	f.change(t, p.ID, 20, base.Add(36*time.Hour))
	f.change(t, p.ID, -3, base.Add(48*time.Hour))
	f.change(t, p.ID, -5, base.Add(72*time.Hour))

	avg, err := f.svc.MovingAverageSaleQuantity(ctx, p.ID, w.ID, 3)
	require.NoError(t, err)
	assert.InDelta(t, 10.0/3.0, avg, 1e-9)

	_, err = f.svc.MovingAverageSaleQuantity(ctx, p.ID, w.ID, 5)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = f.svc.MovingAverageSaleQuantity(ctx, p.ID, w.ID, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestMovingAverageNeedsStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "201", "Tea")
	w := f.warehouse(t, "Main", "Split")

	_, err := f.svc.MovingAverageSaleQuantity(context.Background(), p.ID, w.ID, 1)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPreviousWeekBounds(t *testing.T) {
	tests := []struct {
		name       string
		now        time.Time
		start, end time.Time
	}{
		{
			name:  "wednesday",
			now:   time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC),
			start: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "monday",
			now:   time.Date(2024, 6, 10, 0, 0, 1, 0, time.UTC),
			start: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := previousWeek(tt.now)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestPreviousWeekSales(t *testing.T) {
	now := time.Date(2024, 6, 12, 15, 30, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	p := f.product(t, "202", "Milk")
	w := f.warehouse(t, "Main", "Rijeka")
	f.stock(t, p.ID, w.ID, 50, 100)

	f.change(t, p.ID, -1, time.Date(2024, 6, 2, 23, 59, 0, 0, time.UTC))
	f.change(t, p.ID, -2, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	f.change(t, p.ID, 7, time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	f.change(t, p.ID, -3, time.Date(2024, 6, 9, 23, 59, 0, 0, time.UTC))
	f.change(t, p.ID, -4, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))

	sales, err := f.svc.PreviousWeekSales(context.Background(), w.ID)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, int32(-2), sales[0].Quantity)
	assert.Equal(t, int32(-3), sales[1].Quantity)
}

func TestStorageCostSeries(t *testing.T) {
	today := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	unit := decimal.NewFromFloat(0.5)

	t.Run("no changes covers the lookback window", func(t *testing.T) {
		series := storageCostSeries(4, unit, nil, today)
		require.Len(t, series, storageCostLookbackDays+1)
		assert.Equal(t, today.AddDate(0, 0, -storageCostLookbackDays), series[0].Date)
		assert.Equal(t, today, series[len(series)-1].Date)
		for _, d := range series {
			assert.True(t, decimal.NewFromInt(2).Equal(d.Cost))
		}
	})

	t.Run("older changes extend the window and clamp at zero", func(t *testing.T) {
		first := today.AddDate(0, 0, -40)
		changes := []models.StockChange{
			{Quantity: 6, ChangeDate: first.Add(10 * time.Hour)},
			{Quantity: -20, ChangeDate: first.AddDate(0, 0, 1)},
			{Quantity: 3, ChangeDate: first.AddDate(0, 0, 2)},
		}
		series := storageCostSeries(4, unit, changes, today)
		require.Len(t, series, 41)
		assert.Equal(t, first, series[0].Date)
		assert.True(t, decimal.NewFromInt(5).Equal(series[0].Cost), series[0].Cost.String())
		assert.True(t, decimal.Zero.Equal(series[1].Cost), series[1].Cost.String())
		assert.True(t, decimal.NewFromFloat(1.5).Equal(series[2].Cost), series[2].Cost.String())
		assert.True(t, decimal.NewFromFloat(1.5).Equal(series[40].Cost))
	})
}

func TestWarehouseCostAndDailyStorageCost(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	p := f.product(t, "203", "Bread")
	q := f.product(t, "204", "Butter")
	w := f.warehouse(t, "Main", "Osijek")
	f.stock(t, p.ID, w.ID, 4, 100)
	f.stock(t, q.ID, w.ID, 2, 100)
	f.change(t, p.ID, -1, now.AddDate(0, 0, -1))
	ctx := context.Background()

	costs, err := f.svc.WarehouseCost(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, costs, 2)
	assert.Equal(t, "Bread", costs[0].Product.Name)
	assert.Len(t, costs[0].StockChanges, 1)
	assert.Empty(t, costs[1].StockChanges)
	assert.Nil(t, costs[0].Stock.Product)

	daily, err := f.svc.DailyStorageCost(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Len(t, daily[0].DailyCosts, storageCostLookbackDays+1)
	last := daily[0].DailyCosts[len(daily[0].DailyCosts)-1]
	assert.True(t, decimal.NewFromFloat(1.5).Equal(last.Cost), last.Cost.String())
}

func TestProductsSoldAndMostSold(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "205", "Salt")
	q := f.product(t, "206", "Pepper")
	w := f.warehouse(t, "Main", "Zadar")
	ctx := context.Background()

	_, err := f.svc.MostSoldProduct(ctx, w.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	f.stock(t, p.ID, w.ID, 50, 100)
	f.stock(t, q.ID, w.ID, 50, 100)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.change(t, p.ID, -2, at)
	f.change(t, q.ID, -3, at)
	f.change(t, q.ID, -1, at)
	f.change(t, p.ID, 10, at)

	sales, err := f.svc.ProductsSold(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, q.ID, sales[0].ProductID)
	assert.Equal(t, int64(4), sales[0].Sold)
	assert.Equal(t, int64(2), sales[1].Sold)

	top, err := f.svc.MostSoldProduct(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pepper", top.Name)
}

func TestStuckProducts(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	w := f.warehouse(t, "Main", "Osijek")
	other := f.warehouse(t, "Other", "Pula")

	selling := f.product(t, "301", "Bread")
	stale := f.product(t, "302", "Flour")
	empty := f.product(t, "303", "Yeast")
	elsewhere := f.product(t, "304", "Sugar")

	f.stock(t, selling.ID, w.ID, 20, 100)
	f.stock(t, stale.ID, w.ID, 20, 100)
	f.stock(t, empty.ID, w.ID, 0, 100)
	f.stock(t, elsewhere.ID, other.ID, 20, 100)

	f.change(t, selling.ID, -1, now.AddDate(0, 0, -2))
	f.change(t, stale.ID, -5, now.AddDate(0, 0, -45))
	f.change(t, stale.ID, 10, now.AddDate(0, 0, -1))

	stuck, err := f.svc.StuckProducts(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, stale.ID, stuck[0].ID)
}
