// Package dedup remembers which posts were already sent to the classifier,
// so that re-fetching the same timeline on the next run does not re-classify it.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"TradeSentinel/internal/model"
)

// Seen records posts. FirstSeen reports true the first time a (source, text) pair is offered.
// Forget undoes a sighting so the post is offered again on a later run.
type Seen interface {
	FirstSeen(ctx context.Context, source model.Source, text string) (bool, error)
	Forget(ctx context.Context, source model.Source, text string) error
	Close() error
}

// Key returns the stable fingerprint of a post.
func Key(source model.Source, text string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Noop treats every post as new.
type Noop struct{}

func (Noop) FirstSeen(context.Context, model.Source, string) (bool, error) { return true, nil }
func (Noop) Forget(context.Context, model.Source, string) error          { return nil }
func (Noop) Close() error                                                 { return nil }

// MemorySeen is a process-local Seen.
type MemorySeen struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemorySeen() *MemorySeen {
	return &MemorySeen{keys: make(map[string]struct{})}
}

func (m *MemorySeen) FirstSeen(_ context.Context, source model.Source, text string) (bool, error) {
	k := Key(source, text)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[k]; ok {
		return false, nil
	}
	m.keys[k] = struct{}{}
	return true, nil
}

func (m *MemorySeen) Forget(_ context.Context, source model.Source, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, Key(source, text))
	return nil
}

func (m *MemorySeen) Close() error { return nil }
