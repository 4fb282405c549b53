package filter

import (
	"reflect"
	"testing"
)

func TestAdmit(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Just bought $ACME calls, huge position", true},
		{"$NVDA", true},
		{"selling ($TSLA) today", true},
		{"no tickers mentioned here", false},
		{"", false},
		{"price is $100 now", false},
		{"lowercase $acme is not a ticker", false},
		{"cost me US$5", false},
		{"ACME without sigil", false},
		{"$", false},
		{"\x00\xff$", false},
		{"two tickers $AAPL and $MSFT", true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := Admit(tt.text); got != tt.want {
				t.Errorf("Admit(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestAdmit_NoFalsePositivesWithoutSigil(t *testing.T) {
	texts := []string{
		"Congress passed the budget",
		"AAPL MSFT GOOG are up",
		"Email me at a$b.com",
		"50% off $$$",
		"   ",
	}
	for _, text := range texts {
		if Admit(text) {
			t.Errorf("Admit(%q) = true, want false", text)
		}
	}
}

func TestTickers(t *testing.T) {
	got := Tickers("Bought $AAPL, sold $MSFT, more $AAPL")
	want := []string{"AAPL", "MSFT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tickers = %v, want %v", got, want)
	}
	if got := Tickers("nothing"); got != nil {
		t.Errorf("Tickers(nothing) = %v, want nil", got)
	}
}

func TestMentions(t *testing.T) {
	if !Mentions("Just bought $ACME calls", "ACME") {
		t.Error("expected ACME to be mentioned")
	}
	if Mentions("Just bought $ACME calls", "ACM") {
		t.Error("ACM must not match a prefix of ACME")
	}
}
