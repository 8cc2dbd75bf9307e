package service

import (
	"context"
	"log"
	"time"

	"github.com/icefez/dispenser/internal/dispenser/store"
)

// Janitor periodically hard-deletes issued ledger rows older than the
// retention period.  Issued rows are what make restock possible (they still
// hold the full credential string), so the retention bounds how far back a
// restock can reach.  It runs as a background goroutine and is safe to stop
// via its context or the Stop method.
//
// A retention of 0 disables the janitor entirely.
type Janitor struct {
	ledger    store.LedgerStore
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// JanitorConfig holds the parameters for NewJanitor.
type JanitorConfig struct {
	// RetentionDays is how many days issued entries stay recoverable.
	// 0 means keep everything (janitor will not start).
	RetentionDays int

	// IntervalHours is how often the janitor runs.  Defaults to 6.
	IntervalHours int
}

// NewJanitor creates a janitor but does not start it.  Call Start to begin
// the background loop.
func NewJanitor(ledger store.LedgerStore, cfg JanitorConfig, logger *log.Logger) *Janitor {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	return &Janitor{
		ledger:    ledger,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins the background sweep loop.  It runs an immediate sweep on
// startup, then repeats on the configured interval.  The loop exits when
// ctx is cancelled or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		j.logger.Printf("ledger janitor disabled (retention=0)")
		close(j.done)
		return
	}

	ctx, j.cancel = context.WithCancel(ctx)

	go j.loop(ctx)

	j.logger.Printf("ledger janitor started (retention=%dd, interval=%dh)",
		int(j.retention.Hours()/24), int(j.interval.Hours()))
}

// Stop signals the janitor to exit and waits for it to finish.
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	<-j.done
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	// Run immediately on startup to clean up any backlog.
	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.ledger.PruneIssuedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Printf("ledger janitor error: %v", err)
		return
	}
	if deleted > 0 {
		j.logger.Printf("ledger janitor: deleted %d issued rows older than %s",
			deleted, cutoff.Format(time.RFC3339))
	}
}
