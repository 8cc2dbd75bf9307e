package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/icefez/dispenser/internal/dispenser/store"
	"github.com/icefez/dispenser/internal/dispenser/types"
)

var (
	// ErrNoHistory means restock was asked for but nothing has ever been
	// distributed (or everything was already restocked).
	ErrNoHistory = errors.New("no distribution history")

	// ErrNoneInWindow means history exists but none of it falls inside the
	// requested restock window.
	ErrNoneInWindow = errors.New("no distributions in window")

	// ErrEmptyIngest means the ingested text contained no usable lines.
	ErrEmptyIngest = errors.New("no credentials found in input")

	errDeliveryFinalized = errors.New("delivery already committed or rolled back")
)

// Notifier receives best-effort low-stock alerts.  Implementations must not
// block for long and must swallow their own failures.
type Notifier interface {
	LowStock(ctx context.Context, remaining int)
}

// EngineConfig carries the distribution policy knobs.
type EngineConfig struct {
	// CooldownWindow is the minimum gap between one identity's successful
	// self-service generations.
	CooldownWindow time.Duration

	// LowStockThreshold triggers an owner notification when remaining
	// stock falls to or below it after a distribution.  0 disables.
	LowStockThreshold int

	// Now supplies the clock; defaults to time.Now in UTC.
	Now func() time.Time
}

// Engine orchestrates the ledger, history log, cooldown throttle, and
// low-stock notifications for every distribution operation.
//
// A single mutex serializes each logical read-decide-write sequence across
// the ledger and history together.  The stores additionally serialize their
// own transactions, but the engine gate is what keeps, say, a restock from
// interleaving between a send's take and its rollback.
type Engine struct {
	mu       sync.Mutex
	ledger   store.LedgerStore
	history  store.HistoryStore
	throttle *Throttle
	notifier Notifier
	logger   *log.Logger

	cooldownWindow time.Duration
	lowStock       int
	now            func() time.Time
}

func NewEngine(ledger store.LedgerStore, history store.HistoryStore, cfg EngineConfig, notifier Notifier, logger *log.Logger) *Engine {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		ledger:         ledger,
		history:        history,
		throttle:       NewThrottle(),
		notifier:       notifier,
		logger:         logger,
		cooldownWindow: cfg.CooldownWindow,
		lowStock:       cfg.LowStockThreshold,
		now:            now,
	}
}

// Generate hands the requesting identity the next amount entries from stock.
// The cooldown gate runs before any ledger mutation, and a rejected or
// failed request never consumes stock or burns the cooldown.
func (e *Engine) Generate(ctx context.Context, recipient types.Recipient, amount int) (*types.Distribution, error) {
	if amount < 1 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err := e.throttle.Check(recipient.ID, now, e.cooldownWindow); err != nil {
		return nil, err
	}

	entries, err := e.ledger.Take(ctx, amount, now)
	if err != nil {
		return nil, err
	}

	dist, err := e.recordBatch(ctx, entries, recipient, "", now)
	if err != nil {
		return nil, err
	}
	e.throttle.Mark(recipient.ID, now)

	e.fillRemaining(ctx, dist)
	return dist, nil
}

// Send takes amount entries for an owner-directed delivery and returns a
// pending Delivery.  Nothing is recorded until Commit; Rollback puts the
// entries back at the front of the ledger untouched.
func (e *Engine) Send(ctx context.Context, target types.Recipient, senderID string, amount int) (*Delivery, error) {
	if amount < 1 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	entries, err := e.ledger.Take(ctx, amount, now)
	if err != nil {
		return nil, err
	}

	return &Delivery{
		engine:  e,
		entries: entries,
		target:  target,
		sender:  senderID,
		takenAt: now,
	}, nil
}

// Restock reverses the most recent distributions inside the window: their
// original credential strings go back to the front of the ledger in their
// original relative order, and exactly their history records are removed
// (keyed by record id, never by timestamp).
func (e *Engine) Restock(ctx context.Context, window time.Duration, maxAmount int) (*types.RestockResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	total, err := e.history.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("restock count: %w", err)
	}
	if total == 0 {
		return nil, ErrNoHistory
	}

	now := e.now()
	recs, err := e.history.Window(ctx, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("restock window: %w", err)
	}
	if len(recs) == 0 {
		return nil, ErrNoneInWindow
	}

	// Keep only the newest maxAmount records; recs is oldest-first so the
	// tail is the newest and the relative order survives the cut.
	if maxAmount > 0 && len(recs) > maxAmount {
		recs = recs[len(recs)-maxAmount:]
	}

	ledgerIDs := make([]int64, len(recs))
	histIDs := make([]int64, len(recs))
	for i, rec := range recs {
		ledgerIDs[i] = rec.LedgerID
		histIDs[i] = rec.ID
	}

	restored, err := e.ledger.Restore(ctx, ledgerIDs)
	if err != nil {
		return nil, fmt.Errorf("restock restore: %w", err)
	}
	if err := e.history.RemoveByIDs(ctx, histIDs); err != nil {
		return nil, fmt.Errorf("restock remove history: %w", err)
	}

	size, err := e.ledger.Count(ctx)
	if err != nil {
		e.logger.Printf("restock: count after restore: %v", err)
	}
	return &types.RestockResult{Restored: restored, StockSize: size}, nil
}

// Ingest parses newline-delimited credential text (trimming whitespace and
// skipping blank lines) and appends it to the back of the ledger.
func (e *Engine) Ingest(ctx context.Context, text string) (*types.IngestResult, error) {
	var creds []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			creds = append(creds, line)
		}
	}
	if len(creds) == 0 {
		return nil, ErrEmptyIngest
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ledger.Append(ctx, creds, e.now()); err != nil {
		return nil, fmt.Errorf("ingest append: %w", err)
	}
	total, err := e.ledger.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest count: %w", err)
	}
	return &types.IngestResult{Added: len(creds), Total: total}, nil
}

// StockCount reports how many entries are currently available.
func (e *Engine) StockCount(ctx context.Context) (int, error) {
	return e.ledger.Count(ctx)
}

// RecentHistory returns the newest distribution records for display.
func (e *Engine) RecentHistory(ctx context.Context, limit int) ([]store.HistoryRecord, error) {
	return e.history.Recent(ctx, limit)
}

// recordBatch appends one history record per taken entry under a fresh batch
// id.  If the audit write fails the entries are restored so no credential is
// lost in an unrecorded state.  Caller holds e.mu.
func (e *Engine) recordBatch(ctx context.Context, entries []store.LedgerEntry, recipient types.Recipient, distributedBy string, now time.Time) (*types.Distribution, error) {
	batchID := uuid.NewString()

	dist := &types.Distribution{BatchID: batchID}
	for _, entry := range entries {
		cred := types.ParseCredential(entry.Credential)
		dist.Credentials = append(dist.Credentials, cred)

		_, err := e.history.Append(ctx, store.HistoryRecord{
			BatchID:        batchID,
			RecipientID:    recipient.ID,
			RecipientLabel: recipient.Label,
			CredentialID:   cred.Identifier,
			DistributedBy:  distributedBy,
			LedgerID:       entry.ID,
			CreatedAt:      now,
		})
		if err != nil {
			if _, rerr := e.ledger.Restore(ctx, entryIDs(entries)); rerr != nil {
				e.logger.Printf("restore after failed history append: %v", rerr)
			}
			return nil, fmt.Errorf("record history: %w", err)
		}
	}
	return dist, nil
}

// fillRemaining stamps the post-distribution stock size on dist and fires
// the low-stock notification when the threshold is crossed.  Both are
// best-effort; neither can fail the distribution.
func (e *Engine) fillRemaining(ctx context.Context, dist *types.Distribution) {
	remaining, err := e.ledger.Count(ctx)
	if err != nil {
		e.logger.Printf("stock count after distribution: %v", err)
		return
	}
	dist.Remaining = remaining

	if e.notifier != nil && e.lowStock > 0 && remaining <= e.lowStock {
		e.notifier.LowStock(ctx, remaining)
	}
}

func entryIDs(entries []store.LedgerEntry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Delivery is a send whose outcome is not yet known.  The delivery itself
// (a DM on the chat platform) happens outside the engine, so the caller
// commits after a successful delivery or rolls back after a failed one.
type Delivery struct {
	engine  *Engine
	entries []store.LedgerEntry
	target  types.Recipient
	sender  string
	takenAt time.Time
	final   bool
}

// Credentials exposes the taken entries for the delivery attempt.
func (d *Delivery) Credentials() []types.Credential {
	out := make([]types.Credential, len(d.entries))
	for i, e := range d.entries {
		out[i] = types.ParseCredential(e.Credential)
	}
	return out
}

// Commit records the distribution in history with the sender attached and
// returns the completed distribution.
func (d *Delivery) Commit(ctx context.Context) (*types.Distribution, error) {
	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()

	if d.final {
		return nil, errDeliveryFinalized
	}
	d.final = true

	dist, err := d.engine.recordBatch(ctx, d.entries, d.target, d.sender, d.takenAt)
	if err != nil {
		return nil, err
	}
	d.engine.fillRemaining(ctx, dist)
	return dist, nil
}

// Rollback returns the taken entries to the front of the ledger and records
// nothing, as if the send never happened.
func (d *Delivery) Rollback(ctx context.Context) error {
	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()

	if d.final {
		return errDeliveryFinalized
	}
	d.final = true

	if _, err := d.engine.ledger.Restore(ctx, entryIDs(d.entries)); err != nil {
		return fmt.Errorf("rollback send: %w", err)
	}
	return nil
}
