package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"wps-bot-bridge/internal/domain"
	"wps-bot-bridge/pkg/clock"
)

// Default test configuration values
const (
	testTTL      = 30 * time.Minute
	testMaxTurns = 10
)

var testStart = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(policy domain.SessionPolicy) (*MemorySessionStore, *clock.FakeClock) {
	fake := clock.Fake(testStart)
	return NewMemorySessionStore(policy, fake), fake
}

func defaultTestPolicy() domain.SessionPolicy {
	return domain.SessionPolicy{MaxTurns: testMaxTurns, IdleTTL: testTTL}
}

// TestNewMemorySessionStoreKeepsPolicy tests that the configured policy is kept
func TestNewMemorySessionStoreKeepsPolicy(t *testing.T) {
	policy := domain.SessionPolicy{MaxTurns: 15, MaxBytes: 2048, IdleTTL: 45 * time.Minute}
	store, _ := newTestStore(policy)

	if store.Policy() != policy {
		t.Errorf("expected policy %+v, got %+v", policy, store.Policy())
	}
}

// TestGetContextMissingSession tests that an unknown conversation reads as empty
func TestGetContextMissingSession(t *testing.T) {
	store, _ := newTestStore(defaultTestPolicy())

	history, err := store.GetContext(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Errorf("expected empty non-nil history, got %v", history)
	}
	if store.Len() != 0 {
		t.Error("expected a read not to create a session")
	}
}

// TestAppendAndGetContext tests ordering of appended turns
func TestAppendAndGetContext(t *testing.T) {
	store, _ := newTestStore(defaultTestPolicy())
	ctx := context.Background()

	if err := store.AppendTurn(ctx, "chat_1", domain.RoleUser, "hello"); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if err := store.AppendTurns(ctx, "chat_1",
		domain.Turn{Role: domain.RoleAssistant, Text: "hi"},
		domain.Turn{Role: domain.RoleUser, Text: "how are you"},
	); err != nil {
		t.Fatalf("AppendTurns: %v", err)
	}

	history, _ := store.GetContext(ctx, "chat_1")
	want := []string{"hello", "hi", "how are you"}
	if len(history) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(history))
	}
	for i, w := range want {
		if history[i].Text != w {
			t.Errorf("turn %d: expected %q, got %q", i, w, history[i].Text)
		}
	}

	// returned slice is a copy
	history[0].Text = "changed"
	again, _ := store.GetContext(ctx, "chat_1")
	if again[0].Text != "hello" {
		t.Error("expected GetContext to return a copy")
	}
}

// TestTurnCapFIFO tests that the turn cap drops the oldest turns
func TestTurnCapFIFO(t *testing.T) {
	store, _ := newTestStore(domain.SessionPolicy{MaxTurns: 3, IdleTTL: testTTL})
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_ = store.AppendTurn(ctx, "chat_1", domain.RoleUser, fmt.Sprintf("t%d", i))
		history, _ := store.GetContext(ctx, "chat_1")
		if len(history) > 3 {
			t.Fatalf("cap violated after append %d: %d turns", i, len(history))
		}
	}

	history, _ := store.GetContext(ctx, "chat_1")
	if history[0].Text != "t4" || history[2].Text != "t6" {
		t.Errorf("expected [t4 t5 t6], got %v", history)
	}
}

// TestExpiredSessionReadsEmptyAndIsDeleted tests lazy expiry on access
func TestExpiredSessionReadsEmptyAndIsDeleted(t *testing.T) {
	store, fake := newTestStore(defaultTestPolicy())
	ctx := context.Background()

	_ = store.AppendTurn(ctx, "chat_1", domain.RoleUser, "old")
	fake.Advance(testTTL + time.Second)

	history, _ := store.GetContext(ctx, "chat_1")
	if len(history) != 0 {
		t.Errorf("expected expired session to read empty, got %v", history)
	}
	if store.Len() != 0 {
		t.Errorf("expected expired session to be deleted, %d left", store.Len())
	}

	_ = store.AppendTurn(ctx, "chat_1", domain.RoleUser, "new")
	history, _ = store.GetContext(ctx, "chat_1")
	if len(history) != 1 || history[0].Text != "new" {
		t.Errorf("expected fresh session [new], got %v", history)
	}
}

// TestReset tests that Reset is idempotent and clears history
func TestReset(t *testing.T) {
	store, _ := newTestStore(defaultTestPolicy())
	ctx := context.Background()

	_ = store.AppendTurn(ctx, "chat_1", domain.RoleUser, "hello")
	if err := store.Reset(ctx, "chat_1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := store.Reset(ctx, "chat_1"); err != nil {
		t.Errorf("expected second Reset to succeed, got %v", err)
	}

	history, _ := store.GetContext(ctx, "chat_1")
	if len(history) != 0 {
		t.Errorf("expected empty history after reset, got %v", history)
	}
}

// TestSweep tests that only idle sessions are removed
func TestSweep(t *testing.T) {
	store, fake := newTestStore(defaultTestPolicy())
	ctx := context.Background()

	_ = store.AppendTurn(ctx, "idle", domain.RoleUser, "x")
	fake.Advance(20 * time.Minute)
	_ = store.AppendTurn(ctx, "active", domain.RoleUser, "y")
	fake.Advance(15 * time.Minute)

	removed, err := store.Sweep(ctx, fake.Now())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 session removed, got %d", removed)
	}
	if history, _ := store.GetContext(ctx, "active"); len(history) != 1 {
		t.Error("expected active session to survive the sweep")
	}
}

// TestLazySweepOnAccess tests that idle sessions of other conversations are evicted from the access path
func TestLazySweepOnAccess(t *testing.T) {
	store, fake := newTestStore(defaultTestPolicy())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = store.AppendTurn(ctx, fmt.Sprintf("chat_%d", i), domain.RoleUser, "x")
	}
	fake.Advance(testTTL + time.Minute)

	_, _ = store.GetContext(ctx, "someone_else")
	if store.Len() != 0 {
		t.Errorf("expected lazy sweep to evict idle sessions, %d left", store.Len())
	}
}

// TestOperationsDoNotWaitOnOtherConversations tests that a busy conversation
// never blocks another one, even when a lazy sweep is due
func TestOperationsDoNotWaitOnOtherConversations(t *testing.T) {
	store, fake := newTestStore(defaultTestPolicy())
	ctx := context.Background()

	_ = store.AppendTurn(ctx, "chat_a", domain.RoleUser, "x")
	_ = store.AppendTurn(ctx, "chat_b", domain.RoleUser, "y")

	v, _ := store.sessions.Load("chat_a")
	busy := v.(*sessionEntry)
	busy.mu.Lock()
	defer busy.mu.Unlock()

	fake.Advance(testTTL + time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = store.GetContext(ctx, "chat_b")
		_ = store.AppendTurn(ctx, "chat_b", domain.RoleUser, "z")
		_ = store.Reset(ctx, "chat_c")
		_, _ = store.Sweep(ctx, fake.Now())
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("operations on chat_b waited on chat_a's lock")
	}

	if _, ok := store.sessions.Load("chat_a"); !ok {
		t.Error("expected the busy session to be skipped by the sweep")
	}
	history, _ := store.GetContext(ctx, "chat_b")
	if len(history) != 1 || history[0].Text != "z" {
		t.Errorf("expected chat_b to restart after expiry with one turn, got %v", history)
	}
}

// TestStartSweeperStopsOnCancel tests the background sweeper lifecycle
func TestStartSweeperStopsOnCancel(t *testing.T) {
	store, _ := newTestStore(defaultTestPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	done := store.StartSweeper(ctx, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected sweeper to stop after cancel")
	}
}

// TestConcurrentAppendsAreLinearizable tests per-id atomicity under contention
func TestConcurrentAppendsAreLinearizable(t *testing.T) {
	store, _ := newTestStore(domain.SessionPolicy{MaxTurns: 1000, IdleTTL: testTTL})
	ctx := context.Background()

	const workers = 20
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("chat_%d", i%3)
				_ = store.AppendTurns(ctx, id,
					domain.Turn{Role: domain.RoleUser, Text: fmt.Sprintf("q-%d-%d", w, i)},
					domain.Turn{Role: domain.RoleAssistant, Text: fmt.Sprintf("a-%d-%d", w, i)},
				)
				if i%5 == 0 {
					_, _ = store.GetContext(ctx, id)
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 3; i++ {
		history, _ := store.GetContext(ctx, fmt.Sprintf("chat_%d", i))
		total += len(history)
		// pairs are never interleaved
		for j := 0; j+1 < len(history); j += 2 {
			if history[j].Role != domain.RoleUser || history[j+1].Role != domain.RoleAssistant ||
				history[j].Text[1:] != history[j+1].Text[1:] {
				t.Fatalf("interleaved pair at %d: %v %v", j, history[j], history[j+1])
			}
		}
	}
	if total != workers*perWorker*2 {
		t.Errorf("expected %d turns in total, got %d", workers*perWorker*2, total)
	}
}

// TestConcurrentResetAndAppend tests that Reset racing with appends never loses the store's invariants
func TestConcurrentResetAndAppend(t *testing.T) {
	store, _ := newTestStore(domain.SessionPolicy{MaxTurns: 4, IdleTTL: testTTL})
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if (w+i)%7 == 0 {
					_ = store.Reset(ctx, "chat_1")
					continue
				}
				_ = store.AppendTurn(ctx, "chat_1", domain.RoleUser, "x")
				if history, _ := store.GetContext(ctx, "chat_1"); len(history) > 4 {
					t.Errorf("cap violated: %d turns", len(history))
				}
			}
		}(w)
	}
	wg.Wait()

	if store.Len() > 1 {
		t.Errorf("expected at most one session per id, got %d", store.Len())
	}
}
