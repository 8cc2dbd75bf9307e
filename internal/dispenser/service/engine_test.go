package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/icefez/dispenser/internal/dispenser/service"
	"github.com/icefez/dispenser/internal/dispenser/store"
	"github.com/icefez/dispenser/internal/dispenser/store/memory"
	"github.com/icefez/dispenser/internal/dispenser/types"
)

// recordingNotifier captures low-stock alerts for inspection.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []int
}

func (n *recordingNotifier) LowStock(_ context.Context, remaining int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, remaining)
}

func (n *recordingNotifier) Calls() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int, len(n.calls))
	copy(out, n.calls)
	return out
}

type engineFixture struct {
	engine   *service.Engine
	ledger   *memory.LedgerStore
	history  *memory.HistoryStore
	notifier *recordingNotifier
	clock    *fakeClock
}

func newEngineFixture(stock []string, cfg service.EngineConfig) *engineFixture {
	f := &engineFixture{
		ledger:   memory.NewLedgerStore(stock),
		history:  memory.NewHistoryStore(),
		notifier: &recordingNotifier{},
		clock:    newFakeClock(),
	}
	if cfg.CooldownWindow == 0 {
		cfg.CooldownWindow = 30 * time.Second
	}
	cfg.Now = f.clock.Now
	logger := log.New(bytes.NewBuffer(nil), "", 0)
	f.engine = service.NewEngine(f.ledger, f.history, cfg, f.notifier, logger)
	return f
}

func alice() types.Recipient { return types.Recipient{ID: "alice-id", Label: "alice#0001"} }
func bob() types.Recipient   { return types.Recipient{ID: "bob-id", Label: "bob#0002"} }

// ── Generate ─────────────────────────────────────────────────────────────────

func TestGenerate_ServesFIFOAndRecordsHistory(t *testing.T) {
	f := newEngineFixture([]string{"a@x.com:pw1", "b@x.com:pw2", "c@x.com:pw3"}, service.EngineConfig{})
	ctx := context.Background()

	dist, err := f.engine.Generate(ctx, alice(), 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(dist.Credentials) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(dist.Credentials))
	}
	if dist.Credentials[0].Raw != "a@x.com:pw1" || dist.Credentials[1].Raw != "b@x.com:pw2" {
		t.Errorf("not FIFO: got %q then %q", dist.Credentials[0].Raw, dist.Credentials[1].Raw)
	}
	if dist.Remaining != 1 {
		t.Errorf("expected 1 remaining, got %d", dist.Remaining)
	}
	if dist.BatchID == "" {
		t.Error("expected a batch id")
	}

	recs := f.history.Records()
	if len(recs) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.RecipientID != "alice-id" {
			t.Errorf("recipient = %q", rec.RecipientID)
		}
		if rec.DistributedBy != "" {
			t.Errorf("self-service record should have no distributor, got %q", rec.DistributedBy)
		}
		if rec.BatchID != dist.BatchID {
			t.Errorf("batch id mismatch: %q vs %q", rec.BatchID, dist.BatchID)
		}
	}
	// History keeps the identifier part only, never the secret.
	if recs[0].CredentialID != "a@x.com" || recs[1].CredentialID != "b@x.com" {
		t.Errorf("credential ids = %q, %q", recs[0].CredentialID, recs[1].CredentialID)
	}
}

func TestGenerate_CooldownBlocksSecondCall(t *testing.T) {
	f := newEngineFixture([]string{"a:1", "b:2", "c:3"}, service.EngineConfig{})
	ctx := context.Background()

	if _, err := f.engine.Generate(ctx, alice(), 1); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	f.clock.Advance(10 * time.Second)
	_, err := f.engine.Generate(ctx, alice(), 1)
	var cd *service.CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cd.RemainingSeconds != 20 {
		t.Errorf("expected 20s remaining, got %d", cd.RemainingSeconds)
	}

	// The rejection consumed nothing.
	if n, _ := f.ledger.Count(ctx); n != 2 {
		t.Errorf("rejected attempt consumed stock: %d left", n)
	}

	// And did not extend the cooldown: 31s after the first call works.
	f.clock.Advance(21 * time.Second)
	if _, err := f.engine.Generate(ctx, alice(), 1); err != nil {
		t.Fatalf("Generate after window: %v", err)
	}
}

func TestGenerate_EmptyStock(t *testing.T) {
	f := newEngineFixture(nil, service.EngineConfig{})

	_, err := f.engine.Generate(context.Background(), alice(), 1)
	if !errors.Is(err, store.ErrEmptyStock) {
		t.Fatalf("expected ErrEmptyStock, got %v", err)
	}
}

func TestGenerate_EmptyStockDoesNotBurnCooldown(t *testing.T) {
	f := newEngineFixture(nil, service.EngineConfig{})
	ctx := context.Background()

	if _, err := f.engine.Generate(ctx, alice(), 1); !errors.Is(err, store.ErrEmptyStock) {
		t.Fatalf("expected ErrEmptyStock, got %v", err)
	}

	// Stock arrives; the failed attempt must not have started a cooldown.
	if _, err := f.engine.Ingest(ctx, "fresh:pw"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := f.engine.Generate(ctx, alice(), 1); err != nil {
		t.Fatalf("Generate after ingest: %v", err)
	}
}

func TestGenerate_InsufficientStockLeavesLedgerUntouched(t *testing.T) {
	f := newEngineFixture([]string{"a:1", "b:2"}, service.EngineConfig{})
	ctx := context.Background()

	_, err := f.engine.Generate(ctx, alice(), 5)
	var insufficient *store.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 2 {
		t.Errorf("expected Available=2, got %d", insufficient.Available)
	}

	if n, _ := f.ledger.Count(ctx); n != 2 {
		t.Errorf("failed take mutated the ledger: %d left", n)
	}
	if len(f.history.Records()) != 0 {
		t.Error("failed take appended history")
	}
}

func TestGenerate_LowStockNotifiesOnce(t *testing.T) {
	f := newEngineFixture([]string{"a:1", "b:2", "c:3"}, service.EngineConfig{LowStockThreshold: 2})

	if _, err := f.engine.Generate(context.Background(), alice(), 1); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	calls := f.notifier.Calls()
	if len(calls) != 1 || calls[0] != 2 {
		t.Errorf("expected one low-stock alert with remaining=2, got %v", calls)
	}
}

func TestGenerate_NoDoubleIssueUnderConcurrency(t *testing.T) {
	var stock []string
	for i := 0; i < 40; i++ {
		stock = append(stock, fmt.Sprintf("user%02d@x.com:pw", i))
	}
	f := newEngineFixture(stock, service.EngineConfig{})
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Distinct identities so the cooldown doesn't gate the race.
			r := types.Recipient{ID: fmt.Sprintf("req-%02d", n), Label: "req"}
			dist, err := f.engine.Generate(ctx, r, 1)
			if err != nil {
				t.Errorf("Generate: %v", err)
				return
			}
			mu.Lock()
			seen[dist.Credentials[0].Raw]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(seen) != 40 {
		t.Fatalf("expected 40 distinct credentials, got %d", len(seen))
	}
	for cred, n := range seen {
		if n != 1 {
			t.Errorf("credential %q issued %d times", cred, n)
		}
	}
}

// ── Send ─────────────────────────────────────────────────────────────────────

func TestSend_CommitRecordsDistributor(t *testing.T) {
	f := newEngineFixture([]string{"a@x.com:pw"}, service.EngineConfig{})
	ctx := context.Background()

	delivery, err := f.engine.Send(ctx, bob(), "owner-id", 1)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	creds := delivery.Credentials()
	if len(creds) != 1 || creds[0].Identifier != "a@x.com" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	// Nothing recorded until the delivery commits.
	if len(f.history.Records()) != 0 {
		t.Fatal("history written before commit")
	}

	dist, err := delivery.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if dist.Remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", dist.Remaining)
	}

	recs := f.history.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(recs))
	}
	if recs[0].DistributedBy != "owner-id" {
		t.Errorf("expected distributor owner-id, got %q", recs[0].DistributedBy)
	}
	if recs[0].RecipientID != "bob-id" {
		t.Errorf("expected recipient bob-id, got %q", recs[0].RecipientID)
	}
}

func TestSend_RollbackRestoresFrontAndSkipsHistory(t *testing.T) {
	f := newEngineFixture([]string{"first:1", "second:2", "third:3"}, service.EngineConfig{})
	ctx := context.Background()

	delivery, err := f.engine.Send(ctx, bob(), "owner-id", 2)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := delivery.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if n, _ := f.ledger.Count(ctx); n != 3 {
		t.Errorf("expected ledger back at 3, got %d", n)
	}
	if got := f.ledger.Credentials(); got[0] != "first:1" || got[1] != "second:2" {
		t.Errorf("rollback lost FIFO order: %v", got)
	}
	if len(f.history.Records()) != 0 {
		t.Error("rollback must not leave history records")
	}
}

func TestSend_FinalizedDeliveryCannotBeReused(t *testing.T) {
	f := newEngineFixture([]string{"a:1"}, service.EngineConfig{})
	ctx := context.Background()

	delivery, err := f.engine.Send(ctx, bob(), "owner-id", 1)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := delivery.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := delivery.Rollback(ctx); err == nil {
		t.Fatal("rollback after commit should fail")
	}
}

func TestSend_NoCooldown(t *testing.T) {
	f := newEngineFixture([]string{"a:1", "b:2", "c:3"}, service.EngineConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		delivery, err := f.engine.Send(ctx, bob(), "owner-id", 1)
		if err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if _, err := delivery.Commit(ctx); err != nil {
			t.Fatalf("Commit %d: %v", i, err)
		}
	}
}

// ── Restock ──────────────────────────────────────────────────────────────────

func TestRestock_RoundTrip(t *testing.T) {
	f := newEngineFixture([]string{"a:1", "b:2", "c:3", "d:4"}, service.EngineConfig{})
	ctx := context.Background()

	if _, err := f.engine.Generate(ctx, alice(), 3); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n, _ := f.ledger.Count(ctx); n != 1 {
		t.Fatalf("expected 1 left after generate, got %d", n)
	}

	f.clock.Advance(5 * time.Minute)
	result, err := f.engine.Restock(ctx, time.Hour, 0)
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if result.Restored != 3 {
		t.Errorf("expected 3 restored, got %d", result.Restored)
	}
	if result.StockSize != 4 {
		t.Errorf("expected stock back at 4, got %d", result.StockSize)
	}

	// Restored entries come back at the front in their original order.
	got := f.ledger.Credentials()
	want := []string{"a:1", "b:2", "c:3", "d:4"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ledger order after restock = %v, want %v", got, want)
		}
	}

	if len(f.history.Records()) != 0 {
		t.Errorf("expected history emptied, got %d records", len(f.history.Records()))
	}
}

func TestRestock_MaxAmountTakesNewest(t *testing.T) {
	f := newEngineFixture([]string{"old:1", "mid:2", "new:3"}, service.EngineConfig{})
	ctx := context.Background()

	// Three separate distributions a minute apart.
	for i, who := range []types.Recipient{alice(), bob(), {ID: "carol-id", Label: "carol#3"}} {
		if _, err := f.engine.Generate(ctx, who, 1); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
		f.clock.Advance(time.Minute)
	}

	result, err := f.engine.Restock(ctx, time.Hour, 2)
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if result.Restored != 2 {
		t.Fatalf("expected 2 restored, got %d", result.Restored)
	}

	// The two newest distributions (mid, new) return to the front in
	// their original relative order; the oldest stays in history.
	got := f.ledger.Credentials()
	if got[0] != "mid:2" || got[1] != "new:3" {
		t.Errorf("ledger after capped restock = %v", got)
	}

	recs := f.history.Records()
	if len(recs) != 1 || recs[0].CredentialID != "old" {
		t.Errorf("expected only the oldest record to remain, got %+v", recs)
	}
}

func TestRestock_NoHistory(t *testing.T) {
	f := newEngineFixture([]string{"a:1"}, service.EngineConfig{})

	_, err := f.engine.Restock(context.Background(), time.Hour, 0)
	if !errors.Is(err, service.ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestRestock_NoneInWindow(t *testing.T) {
	f := newEngineFixture([]string{"a:1"}, service.EngineConfig{})
	ctx := context.Background()

	if _, err := f.engine.Generate(ctx, alice(), 1); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// The distribution is two hours old; a one-hour window misses it.
	f.clock.Advance(2 * time.Hour)
	_, err := f.engine.Restock(ctx, time.Hour, 0)
	if !errors.Is(err, service.ErrNoneInWindow) {
		t.Fatalf("expected ErrNoneInWindow, got %v", err)
	}
}

// ── Ingest ───────────────────────────────────────────────────────────────────

func TestIngest_TrimsAndSkipsBlanks(t *testing.T) {
	f := newEngineFixture([]string{"existing:pw"}, service.EngineConfig{})

	result, err := f.engine.Ingest(context.Background(), "  a@x.com:1  \n\n\nb@x.com:2\n   \n")
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Added != 2 {
		t.Errorf("expected 2 added, got %d", result.Added)
	}
	if result.Total != 3 {
		t.Errorf("expected total 3, got %d", result.Total)
	}

	got := f.ledger.Credentials()
	if got[len(got)-1] != "b@x.com:2" {
		t.Errorf("ingested entries should land at the back, got %v", got)
	}
}

func TestIngest_EmptyInput(t *testing.T) {
	f := newEngineFixture(nil, service.EngineConfig{})

	_, err := f.engine.Ingest(context.Background(), "\n  \n\t\n")
	if !errors.Is(err, service.ErrEmptyIngest) {
		t.Fatalf("expected ErrEmptyIngest, got %v", err)
	}
}
