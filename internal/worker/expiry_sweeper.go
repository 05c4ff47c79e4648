package worker

import (
	"context"
	"fmt"
	"time"

	"inventory/internal/observability"
	"inventory/internal/utils"
)

// Expirer expires HELD holds whose deadline has passed.
type Expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// ExpirySweeper periodically expires lapsed holds. Any number of instances may run it
// at once; each hold is restored only by the sweep that wins its row lock.
type ExpirySweeper struct {
	holds    Expirer
	interval time.Duration
	batch    int
	metrics  *observability.InventoryMetrics
}

func NewExpirySweeper(holds Expirer, interval time.Duration, batch int, m *observability.InventoryMetrics) *ExpirySweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &ExpirySweeper{holds: holds, interval: interval, batch: batch, metrics: m}
}

// Run sweeps every interval until ctx is cancelled. Sweep errors are logged and the
// loop continues; Run itself returns nil on shutdown.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	utils.LogEvent("", "sweeper", "start", fmt.Sprintf("interval=%s batch=%d", w.interval, w.batch))
	for {
		select {
		case <-ctx.Done():
			utils.LogEvent("", "sweeper", "stop", "context selesai")
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				utils.LogEvent("", "sweeper", "error", err.Error())
			}
		}
	}
}

// maxBatchesPerRun bounds one run so a large backlog cannot starve shutdown.
const maxBatchesPerRun = 10

// RunOnce drains due holds in batches and returns how many were expired.
func (w *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for i := 0; i < maxBatchesPerRun; i++ {
		n, err := w.holds.ExpireDue(ctx, w.batch)
		total += n
		if err != nil {
			w.metrics.Sweep(err)
			return total, err
		}
		if n < w.batch {
			break
		}
	}
	w.metrics.Sweep(nil)
	if total > 0 {
		utils.LogEvent("", "sweeper", "expired", fmt.Sprintf("count=%d", total))
	}
	return total, nil
}
