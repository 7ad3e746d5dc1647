package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/tendera/internal/metrics"
)

// Timer periodically fails pending escrows whose payment never completed
// before expiry, freeing the request from a stuck acceptance.
type Timer struct {
	service  *Service
	store    Store
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a new escrow expiry timer.
func NewTimer(service *Service, store Store, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		store:    store,
		interval: time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the expiry sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeSweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in escrow expiry timer", "panic", fmt.Sprint(r))
		}
	}()
	t.sweepExpired(ctx)
}

func (t *Timer) sweepExpired(ctx context.Context) {
	now := time.Now()

	expired, err := t.store.ListExpiredPending(ctx, now, 100)
	if err != nil {
		t.logger.Warn("failed to list expired escrows", "error", err)
		return
	}

	for _, tx := range expired {
		if err := tx.Fail("Escrow expired before payment completed", now); err != nil {
			// Raced with a concurrent transition; the escrow is no longer
			// pending, nothing to do.
			continue
		}
		tx.UpdatedBy = "system"
		if err := t.store.Update(ctx, tx); err != nil {
			t.logger.Warn("failed to expire escrow",
				"escrow_id", tx.ID,
				"error", err,
			)
			continue
		}
		metrics.EscrowsExpiredTotal.Inc()
		metrics.RecordEscrowTransition(string(StatusFailed))
		t.logger.Info("expired pending escrow",
			"escrow_id", tx.ID,
			"request_id", tx.RequestID,
			"expired_at", tx.ExpiresAt,
		)
	}
}
