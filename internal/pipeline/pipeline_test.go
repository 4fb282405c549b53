package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"TradeSentinel/internal/classifier"
	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/dedup"
	"TradeSentinel/internal/filter"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/session"
)

// tickerClient reports a bullish magnitude-7 trade on the first ticker of every post.
type tickerClient struct {
	mu      sync.Mutex
	texts   []string
	pingErr error
	fail    map[string]error
}

func (c *tickerClient) ClassifyRaw(_ context.Context, source model.Source, text string) (*classifier.Verdict, error) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	if err := c.fail[text]; err != nil {
		return nil, err
	}
	if strings.Contains(text, "nothing") {
		return nil, nil
	}
	return &classifier.Verdict{
		MemberName:     string(source),
		CompanyTraded:  filter.Tickers(text)[0],
		TradeDirection: "good",
		TradeMagnitude: 7,
	}, nil
}

func (c *tickerClient) Ping(context.Context) error { return c.pingErr }

func (c *tickerClient) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type memorySink struct {
	mu      sync.Mutex
	signals []model.TradeSignal
}

func (s *memorySink) Append(sig model.TradeSignal) {
	s.mu.Lock()
	s.signals = append(s.signals, sig)
	s.mu.Unlock()
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signals)
}

func newCoordinator(t *testing.T, cfg Config, f collector.Fetcher, c classifier.Client, sink Sink, seen dedup.Seen) *Coordinator {
	t.Helper()
	rc := classifier.NewRetrying(c, classifier.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, time.UTC)
	return NewCoordinator(cfg, Deps{Fetcher: f, Classifier: rc, Sink: sink, Seen: seen})
}

func TestPartition(t *testing.T) {
	src := func(n int) []model.Source {
		out := make([]model.Source, n)
		for i := range out {
			out[i] = model.Source(string(rune('a' + i)))
		}
		return out
	}
	tests := []struct {
		name       string
		sources    int
		maxWorkers int
		wantSizes  []int
	}{
		{"clamped to source count", 2, 5, []int{1, 1}},
		{"even split", 6, 3, []int{2, 2, 2}},
		{"last absorbs remainder", 7, 3, []int{2, 2, 3}},
		{"single worker", 4, 1, []int{4}},
		{"non-positive workers", 3, 0, []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sources := src(tt.sources)
			parts := Partition(sources, tt.maxWorkers)
			if len(parts) != len(tt.wantSizes) {
				t.Fatalf("got %d partitions, want %d", len(parts), len(tt.wantSizes))
			}
			var flat []model.Source
			for i, p := range parts {
				if len(p) != tt.wantSizes[i] {
					t.Errorf("partition %d has %d sources, want %d", i, len(p), tt.wantSizes[i])
				}
				flat = append(flat, p...)
			}
			for i := range sources {
				if flat[i] != sources[i] {
					t.Fatalf("order not preserved at %d: %s vs %s", i, flat[i], sources[i])
				}
			}
		})
	}
	if Partition(nil, 5) != nil {
		t.Error("expected nil partitions for no sources")
	}
}

func TestRunClampsWorkers(t *testing.T) {
	f := &collector.MockFetcher{Posts: map[model.Source][]string{
		"alice": {"Just bought $ACME calls, huge position"},
		"bob":   {"Selling my $XYZ"},
	}}
	sink := &memorySink{}
	c := newCoordinator(t, Config{MaxWorkers: 5, Deadline: 5 * time.Second}, f, &tickerClient{}, sink, nil)

	res, err := c.Run(context.Background(), []model.Source{"alice", "bob"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Workers != 2 {
		t.Errorf("Workers = %d, want 2", res.Workers)
	}
	if res.SignalsProduced != 2 || sink.len() != 2 {
		t.Errorf("signals = %d (sink %d), want 2", res.SignalsProduced, sink.len())
	}
	if res.ID == "" {
		t.Error("expected a run id")
	}
}

func TestRunAcmeScenario(t *testing.T) {
	f := &collector.MockFetcher{Posts: map[model.Source][]string{
		"alice": {"Just bought $ACME calls, huge position", "no tickers mentioned here"},
	}}
	client := &tickerClient{}
	sink := &memorySink{}
	c := newCoordinator(t, Config{MaxWorkers: 5, Deadline: 5 * time.Second}, f, client, sink, nil)

	res, err := c.Run(context.Background(), []model.Source{"alice"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ItemsFetched != 2 || res.ItemsAdmitted != 1 {
		t.Errorf("fetched=%d admitted=%d, want 2/1", res.ItemsFetched, res.ItemsAdmitted)
	}
	for _, text := range client.seen() {
		if text == "no tickers mentioned here" {
			t.Error("ticker-free post reached the classifier")
		}
	}
	if len(res.Signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(res.Signals))
	}
	sig := res.Signals[0]
	if sig.InstrumentSymbol != "ACME" || sig.Direction != model.Bullish {
		t.Errorf("signal = %+v", sig)
	}
	if sig.Magnitude < model.MinMagnitude || sig.Magnitude > model.MaxMagnitude {
		t.Errorf("magnitude %d out of range", sig.Magnitude)
	}
}

func TestRunFetchErrorIsIsolated(t *testing.T) {
	f := &collector.MockFetcher{
		Posts:  map[model.Source][]string{"bob": {"Loading up on $ACME"}},
		Errors: map[model.Source]error{"alice": errors.New("page load stalled")},
	}
	sink := &memorySink{}
	c := newCoordinator(t, Config{MaxWorkers: 1, Deadline: 5 * time.Second}, f, &tickerClient{}, sink, nil)

	res, err := c.Run(context.Background(), []model.Source{"alice", "bob"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Errors != 1 || res.SourcesFailed != 1 {
		t.Errorf("errors=%d failed=%d, want 1/1", res.Errors, res.SourcesFailed)
	}
	if res.SignalsProduced != 1 || res.Signals[0].OriginSource != "bob" {
		t.Errorf("expected bob's signal, got %+v", res.Signals)
	}
	if f.Calls("bob") != 1 {
		t.Errorf("bob fetched %d times, want 1", f.Calls("bob"))
	}
}

func TestRunAllSourcesFailed(t *testing.T) {
	f := &collector.MockFetcher{Errors: map[model.Source]error{
		"alice": errors.New("down"),
		"bob":   errors.New("down"),
	}}
	c := newCoordinator(t, Config{MaxWorkers: 2, Deadline: 5 * time.Second}, f, &tickerClient{}, &memorySink{}, nil)

	res, err := c.Run(context.Background(), []model.Source{"alice", "bob"})
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("err = %v, want ErrRunFailed", err)
	}
	if res == nil || res.Errors != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunNoSources(t *testing.T) {
	c := newCoordinator(t, Config{}, &collector.MockFetcher{}, &tickerClient{}, &memorySink{}, nil)
	if _, err := c.Run(context.Background(), nil); !errors.Is(err, ErrNoSources) {
		t.Fatalf("err = %v, want ErrNoSources", err)
	}
}

func TestRunScheduledLoadsSources(t *testing.T) {
	f := &collector.MockFetcher{Posts: map[model.Source][]string{"alice": {"$ACME to the moon"}}}
	rc := classifier.NewRetrying(&tickerClient{}, classifier.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}, time.UTC)

	loadErr := errors.New("missing file")
	c := NewCoordinator(Config{}, Deps{
		Sources:    func() ([]model.Source, error) { return nil, loadErr },
		Fetcher:    f,
		Classifier: rc,
		Sink:       &memorySink{},
	})
	if _, err := c.RunScheduled(context.Background()); !errors.Is(err, loadErr) {
		t.Fatalf("err = %v, want load error", err)
	}

	c.loadSrc = func() ([]model.Source, error) { return []model.Source{"alice"}, nil }
	res, err := c.RunScheduled(context.Background())
	if err != nil {
		t.Fatalf("RunScheduled: %v", err)
	}
	if res.SignalsProduced != 1 {
		t.Errorf("signals = %d, want 1", res.SignalsProduced)
	}
}

func TestRunPreflightFailure(t *testing.T) {
	f := &collector.MockFetcher{Posts: map[model.Source][]string{"alice": {"$ACME"}}}
	client := &tickerClient{pingErr: errors.New("bad api key")}
	c := newCoordinator(t, Config{Preflight: true}, f, client, &memorySink{}, nil)

	if _, err := c.Run(context.Background(), []model.Source{"alice"}); err == nil {
		t.Fatal("expected preflight error")
	}
	if f.Calls("alice") != 0 {
		t.Error("sources fetched despite failed preflight")
	}
}

func TestRunDeadlineAbandonsWorkers(t *testing.T) {
	f := &collector.MockFetcher{
		Posts: map[model.Source][]string{"alice": {"$ACME"}, "bob": {"$XYZ"}},
		Delay: 300 * time.Millisecond,
	}
	c := newCoordinator(t, Config{MaxWorkers: 2, Deadline: 50 * time.Millisecond}, f, &tickerClient{}, &memorySink{}, nil)

	start := time.Now()
	res, err := c.Run(context.Background(), []model.Source{"alice", "bob"})
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Run waited %v past its deadline", elapsed)
	}
	if !errors.Is(err, ErrRunFailed) {
		t.Errorf("err = %v, want ErrRunFailed", err)
	}
	if res.Timeouts != 2 {
		t.Errorf("Timeouts = %d, want 2", res.Timeouts)
	}
}

func TestRunClassificationFailureIsolated(t *testing.T) {
	f := &collector.MockFetcher{Posts: map[model.Source][]string{
		"alice": {"Bought $ACME", "Bought $XYZ", "Said nothing about $FOO"},
	}}
	client := &tickerClient{fail: map[string]error{"Bought $ACME": classifier.ErrTerminal}}
	seen := dedup.NewMemorySeen()
	c := newCoordinator(t, Config{}, f, client, &memorySink{}, seen)

	res, err := c.Run(context.Background(), []model.Source{"alice"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Errors != 1 || res.SignalsProduced != 1 || res.NoSignal != 1 {
		t.Errorf("errors=%d signals=%d no_signal=%d, want 1/1/1", res.Errors, res.SignalsProduced, res.NoSignal)
	}

	// The failed post is forgotten and retried, the others are duplicates now.
	client.fail = nil
	res, err = c.Run(context.Background(), []model.Source{"alice"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Duplicates != 2 || res.SignalsProduced != 1 {
		t.Errorf("duplicates=%d signals=%d, want 2/1", res.Duplicates, res.SignalsProduced)
	}
}

func TestRunRejectedVerdict(t *testing.T) {
	f := &collector.MockFetcher{Posts: map[model.Source][]string{"alice": {"$ACME looks great"}}}
	client := &badMagnitudeClient{}
	rc := classifier.NewRetrying(client, classifier.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, time.UTC)
	sink := &memorySink{}
	c := NewCoordinator(Config{}, Deps{Fetcher: f, Classifier: rc, Sink: sink})

	res, err := c.Run(context.Background(), []model.Source{"alice"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rejected != 1 || res.Errors != 0 || sink.len() != 0 {
		t.Errorf("rejected=%d errors=%d stored=%d", res.Rejected, res.Errors, sink.len())
	}
	if client.calls != 1 {
		t.Errorf("rejected verdict retried: %d calls", client.calls)
	}
}

type badMagnitudeClient struct{ calls int }

func (c *badMagnitudeClient) ClassifyRaw(context.Context, model.Source, string) (*classifier.Verdict, error) {
	c.calls++
	return &classifier.Verdict{MemberName: "Jane", CompanyTraded: "ACME", TradeDirection: "good", TradeMagnitude: 42}, nil
}

func (c *badMagnitudeClient) Ping(context.Context) error { return nil }

func TestRunWithSessionStore(t *testing.T) {
	sources := make([]model.Source, 12)
	posts := make(map[model.Source][]string, len(sources))
	for i := range sources {
		sources[i] = model.Source("member" + string(rune('a'+i)))
		posts[sources[i]] = []string{"Grabbed more $ACME today"}
	}
	store := session.NewStore(t.TempDir()+"/trades.json", time.UTC)
	if err := store.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	c := newCoordinator(t, Config{MaxWorkers: 5, Deadline: 5 * time.Second},
		&collector.MockFetcher{Posts: posts}, &tickerClient{}, store, nil)

	res, err := c.Run(context.Background(), sources)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := doc.SignalCount(); got != res.SignalsProduced || got != len(sources) {
		t.Errorf("stored %d signals, run produced %d, want %d", got, res.SignalsProduced, len(sources))
	}
}
