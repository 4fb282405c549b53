package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"TradeSentinel/internal/model"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func testSignal(source, symbol string, at time.Time) model.TradeSignal {
	return model.TradeSignal{
		MemberName:       source,
		InstrumentSymbol: symbol,
		Direction:        model.Bullish,
		Magnitude:        5,
		SourceText:       "bought $" + symbol,
		ObservedAt:       at,
		OriginSource:     model.Source(source),
	}
}

func TestInitialize_CreatesEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trades.json")
	s := NewStore(path, time.UTC)
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Sessions == nil || len(doc.Sessions) != 0 {
		t.Fatalf("expected empty non-nil sessions, got %#v", doc.Sessions)
	}
	data, _ := os.ReadFile(path)
	if string(data) == "" {
		t.Fatal("expected store file to be written")
	}
}

func TestInitialize_IdempotentOnPopulatedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.json")
	s := NewStore(path, time.UTC)
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	s.Append(testSignal("alice", "ACME", now))
	s.Append(testSignal("bob", "XYZ", now))

	for i := 0; i < 2; i++ {
		if err := s.Initialize(); err != nil {
			t.Fatalf("Initialize #%d: %v", i+2, err)
		}
	}
	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(doc.Sessions))
	}
	if got := doc.SignalCount(); got != 2 {
		t.Fatalf("expected 2 signals, got %d", got)
	}
}

func TestAppend_BucketsByReferenceDate(t *testing.T) {
	loc := newYork(t)
	s := NewStore(filepath.Join(t.TempDir(), "trades.json"), loc)

	// 2026-03-03 03:00 UTC is still 2026-03-02 in New York.
	late := time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC)
	next := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	s.Append(testSignal("alice", "ACME", late))
	s.Append(testSignal("alice", "ACME", next))

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(doc.Sessions))
	}
	if doc.Sessions[0].Date != "2026-03-02" || doc.Sessions[1].Date != "2026-03-03" {
		t.Errorf("unexpected date keys %q, %q", doc.Sessions[0].Date, doc.Sessions[1].Date)
	}
	for _, sess := range doc.Sessions {
		for _, sig := range sess.Signals {
			if got := DateKey(sig.ObservedAt, loc); got != sess.Date {
				t.Errorf("signal observed on %s stored in session %s", got, sess.Date)
			}
		}
	}
}

func TestAppend_RoundTripPreservesSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.json")
	s := NewStore(path, time.UTC)

	want := map[string]int{"2026-01-05": 3, "2026-01-06": 1, "2026-01-07": 2}
	for date, n := range want {
		day, _ := time.Parse(model.DateLayout, date)
		for i := 0; i < n; i++ {
			s.Append(testSignal("alice", fmt.Sprintf("T%c", 'A'+i), day.Add(14*time.Hour)))
		}
	}

	reopened := NewStore(path, time.UTC)
	doc, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Sessions) != len(want) {
		t.Fatalf("expected %d sessions, got %d", len(want), len(doc.Sessions))
	}
	for _, sess := range doc.Sessions {
		if got := len(sess.Signals); got != want[sess.Date] {
			t.Errorf("session %s: expected %d signals, got %d", sess.Date, want[sess.Date], got)
		}
		if sess.OpenedAt.IsZero() {
			t.Errorf("session %s: opened_at not set", sess.Date)
		}
	}
}

func TestAppend_ConcurrentAppendsAreNotLost(t *testing.T) {
	const k = 50
	s := NewStore(filepath.Join(t.TempDir(), "trades.json"), time.UTC)
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s.Append(testSignal(fmt.Sprintf("member%d", i), "ACME", now))
		}(i)
	}
	close(start)
	wg.Wait()

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(doc.Sessions))
	}
	seen := make(map[model.Source]bool)
	for _, sig := range doc.Sessions[0].Signals {
		seen[sig.OriginSource] = true
	}
	if len(seen) != k {
		t.Fatalf("expected %d distinct signals, got %d", k, len(seen))
	}
}

func TestAppend_CorruptStoreIsSwallowed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, time.UTC)
	s.Append(testSignal("alice", "ACME", time.Now()))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{not json" {
		t.Errorf("corrupt store was overwritten: %q", data)
	}
	if _, err := s.Load(); err == nil {
		t.Error("expected Load to report the parse error")
	}
}

func TestAppend_WithoutInitializeCreatesStore(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "trades.json"), time.UTC)
	s.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	sig := testSignal("alice", "ACME", time.Time{})
	s.Append(sig)

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Sessions) != 1 || doc.Sessions[0].Date != "2026-03-02" {
		t.Fatalf("unexpected sessions %#v", doc.Sessions)
	}
}
