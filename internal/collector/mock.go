package collector

import (
	"context"
	"sync"
	"time"

	"TradeSentinel/internal/model"
)

// MockFetcher returns controllable fixed posts for development and testing.
type MockFetcher struct {
	Posts  map[model.Source][]string
	Errors map[model.Source]error
	// Delay blocks each fetch, ignoring ctx, to emulate a stalled page load.
	Delay time.Duration

	mu    sync.Mutex
	calls map[model.Source]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) Fetch(_ context.Context, source model.Source) ([]model.RawItem, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[model.Source]int)
	}
	m.calls[source]++
	m.mu.Unlock()

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if err, ok := m.Errors[source]; ok && err != nil {
		return nil, &FetchError{Source: source, Err: err}
	}
	texts := m.Posts[source]
	items := make([]model.RawItem, len(texts))
	for i, t := range texts {
		items[i] = model.RawItem{Source: source, Text: t}
	}
	return items, nil
}

// Calls returns how many times source was fetched.
func (m *MockFetcher) Calls(source model.Source) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[source]
}
