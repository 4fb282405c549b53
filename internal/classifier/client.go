package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"TradeSentinel/internal/model"
)

// Verdict is the classifier's raw structured answer for one post.
type Verdict struct {
	MemberName     string  `json:"member_name"`
	CompanyTraded  string  `json:"company_traded"`
	TradeDirection string  `json:"trade_direction"`
	TradeMagnitude float64 `json:"trade_magnitude"`
}

// Client classifies one post. A nil Verdict with a nil error means "no signal".
type Client interface {
	ClassifyRaw(ctx context.Context, source model.Source, text string) (*Verdict, error)
	// Ping checks that the service is reachable and the credentials are accepted.
	Ping(ctx context.Context) error
}

// ParseVerdict decodes the classifier's text answer. "null" (or an empty answer)
// is the explicit no-signal verdict.
func ParseVerdict(raw string) (*Verdict, error) {
	s := stripFences(raw)
	// The model sometimes answers with the JSON string "null".
	if len(s) >= 2 && s[0] == '"' {
		var str string
		if err := json.Unmarshal([]byte(s), &str); err == nil {
			s = strings.TrimSpace(str)
		}
	}
	switch strings.ToLower(s) {
	case "", "null", "none":
		return nil, nil
	}
	var v *Verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrMalformed, err, truncate(s, 120))
	}
	return v, nil
}

// stripFences removes a surrounding ```json ... ``` block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
