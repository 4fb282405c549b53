package model

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies a tracked public figure (a handle).
type Source string

// RawItem is one fetched post attributed to a Source.
type RawItem struct {
	Source Source
	Text   string
}

// Direction is the trade sentiment of a signal.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// ParseDirection accepts the classifier's vocabulary ("good"/"bad") as well as the canonical names.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good", "bullish":
		return Bullish, nil
	case "bad", "bearish":
		return Bearish, nil
	default:
		return "", fmt.Errorf("unknown trade direction %q", s)
	}
}

const (
	MinMagnitude = 1
	MaxMagnitude = 10
)

// TradeSignal is a validated, classified trade-related post.
type TradeSignal struct {
	MemberName       string    `json:"member_name"`
	InstrumentSymbol string    `json:"instrument_symbol"`
	Direction        Direction `json:"direction"`
	Magnitude        int       `json:"magnitude"`
	SourceText       string    `json:"source_text"`
	ObservedAt       time.Time `json:"observed_at"`
	OriginSource     Source    `json:"origin_source"`
}
