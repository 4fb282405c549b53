// Package session persists trade signals into a date-bucketed JSON document.
//
// The document is read fully and rewritten fully on every append. That is fine
// at one write per qualifying post; an append-only log with compaction is the
// way forward if write volume grows.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
)

// Store is a concurrency-safe, append-only accumulator of trade signals.
type Store struct {
	mu       sync.Mutex
	filePath string
	loc      *time.Location
	now      func() time.Time
}

// NewStore creates a Store backed by filePath. Date keys are computed in loc.
func NewStore(filePath string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{filePath: filePath, loc: loc, now: time.Now}
}

// Initialize creates the store file with an empty session list if it does not exist.
// An existing file is never touched.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.filePath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat store: %w", err)
	}
	if err := s.save(&model.StoreDocument{Sessions: []model.Session{}}); err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	slog.Info("Session store initialized", "path", s.filePath)
	return nil
}

// Append adds sig to the session of its observation date. Failures are logged
// and swallowed so that persistence problems never stop the pipeline.
func (s *Store) Append(sig model.TradeSignal) {
	if err := s.append(sig); err != nil {
		metrics.StoreAppendFailures.Inc()
		slog.Error("Failed to append signal to store",
			"stage", "persist",
			"source", sig.OriginSource,
			"symbol", sig.InstrumentSymbol,
			"path", s.filePath,
			"error", err)
		return
	}
	metrics.SignalsStored.Inc()
}

func (s *Store) append(sig model.TradeSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	now := s.now().In(s.loc)
	observed := sig.ObservedAt
	if observed.IsZero() {
		observed = now
	}
	date := DateKey(observed, s.loc)

	if sess := doc.SessionFor(date); sess != nil {
		sess.Signals = append(sess.Signals, sig)
	} else {
		doc.Sessions = append(doc.Sessions, model.Session{
			Date:     date,
			OpenedAt: now,
			Signals:  []model.TradeSignal{sig},
		})
	}
	return s.save(doc)
}

// Load returns a snapshot of the whole store.
func (s *Store) Load() (*model.StoreDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}


// load reads the document. A missing file is an empty store.
func (s *Store) load() (*model.StoreDocument, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &model.StoreDocument{Sessions: []model.Session{}}, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	var doc model.StoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	if doc.Sessions == nil {
		doc.Sessions = []model.Session{}
	}
	return &doc, nil
}

// save writes doc to a temp file and renames it over the store.
func (s *Store) save(doc *model.StoreDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if dir := filepath.Dir(s.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// DateKey returns the YYYY-MM-DD key of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(model.DateLayout)
}
