package model

import "time"

// DateLayout is the format of a session date key.
const DateLayout = "2006-01-02"

// Session holds every signal observed on one calendar date of the reference timezone.
type Session struct {
	Date     string        `json:"date"`
	OpenedAt time.Time     `json:"opened_at"`
	Signals  []TradeSignal `json:"signals"`
}

// StoreDocument is the on-disk shape of the session store.
type StoreDocument struct {
	Sessions []Session `json:"sessions"`
}

// SessionFor returns the session for the given date key, or nil.
func (d *StoreDocument) SessionFor(date string) *Session {
	for i := range d.Sessions {
		if d.Sessions[i].Date == date {
			return &d.Sessions[i]
		}
	}
	return nil
}

// SignalCount returns the total number of signals across all sessions.
func (d *StoreDocument) SignalCount() int {
	n := 0
	for _, s := range d.Sessions {
		n += len(s.Signals)
	}
	return n
}
