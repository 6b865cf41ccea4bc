package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"pharmacy-inventory/internal/alerts"
	"pharmacy-inventory/internal/models"
	"pharmacy-inventory/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAlertService_TTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.alerts.Emit(ctx, f.admin, []alerts.Cause{
		alerts.MedicineAdded{MedicineID: 1, Name: "Aspirin", Quantity: 10},
	}, f.clock.Now())
	require.True(t, result.OK())
	alert := result.Stored[0]
	assert.Equal(t, testNow.Add(alerts.DefaultTTL), alert.ExpiresAt)
	assert.Equal(t, f.admin.UserID, alert.TriggeredBy.Int64)

	f.clock.Advance(alerts.DefaultTTL - time.Second)
	_, err := f.alerts.Get(ctx, alert.ID)
	require.NoError(t, err)

	f.clock.Advance(time.Second + time.Millisecond)

	_, err = f.alerts.Get(ctx, alert.ID)
	assert.ErrorIs(t, err, ErrAlertNotFound)

	list, total, err := f.alerts.List(ctx, repository.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	unread, err := f.alerts.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)

	assert.ErrorIs(t, f.alerts.MarkRead(ctx, alert.ID), ErrAlertNotFound)
	assert.ErrorIs(t, f.alerts.Delete(ctx, alert.ID), ErrAlertNotFound)

	purged, err := f.alerts.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestAlertService_ReadState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.alerts.Emit(ctx, f.admin, []alerts.Cause{
		alerts.StockLow{MedicineID: 1, Name: "Aspirin", Quantity: 2, MinQuantity: 5},
		alerts.StockLow{MedicineID: 1, Name: "Aspirin", Quantity: 2, MinQuantity: 5},
		alerts.MedicineIssued{MedicineID: 1, Name: "Aspirin", Quantity: 3, Recipient: "Ana"},
	}, f.clock.Now())
	require.Len(t, result.Stored, 3)
	assert.Equal(t, 3, result.Published)

	lows, total, err := f.alerts.List(ctx, repository.AlertFilter{Type: models.AlertStockLow})
	require.NoError(t, err)
	assert.Len(t, lows, 2, "identical alerts are not deduplicated")
	assert.Equal(t, int64(2), total)

	require.NoError(t, f.alerts.MarkRead(ctx, result.Stored[0].ID))
	unread, err := f.alerts.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	require.NoError(t, f.alerts.Delete(ctx, result.Stored[1].ID))
	_, err = f.alerts.Get(ctx, result.Stored[1].ID)
	assert.ErrorIs(t, err, ErrAlertNotFound)

	marked, err := f.alerts.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	unread, err = f.alerts.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)

	assert.ErrorIs(t, f.alerts.MarkRead(ctx, 9999), ErrAlertNotFound)
}

type countingPurger struct {
	mu    sync.Mutex
	calls int
	done  chan struct{}
}

func (p *countingPurger) PurgeExpired(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls == 2 {
		close(p.done)
	}
	return 3, nil
}

func TestAlertSweeper_RunSweepsUntilCancelled(t *testing.T) {
	purger := &countingPurger{done: make(chan struct{})}
	sweeper := NewAlertSweeper(purger, 10*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(stopped)
	}()

	select {
	case <-purger.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not tick")
	}
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestAlertSweeper_SweepOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.alerts.Emit(ctx, f.admin, []alerts.Cause{
		alerts.SystemNotice{Title: "Old", Message: "old notice"},
	}, f.clock.Now())
	f.clock.Advance(alerts.DefaultTTL)
	f.alerts.Emit(ctx, f.admin, []alerts.Cause{
		alerts.SystemNotice{Title: "New", Message: "new notice"},
	}, f.clock.Now())

	sweeper := NewAlertSweeper(f.alerts, 0, zaptest.NewLogger(t))
	assert.Equal(t, int64(1), sweeper.SweepOnce(ctx))
	assert.Zero(t, sweeper.SweepOnce(ctx))

	list, _, err := f.alerts.List(ctx, repository.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "New", list[0].Title)
}
