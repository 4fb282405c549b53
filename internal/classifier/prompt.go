package classifier

import (
	"fmt"

	"TradeSentinel/internal/model"
)

const promptTemplate = `You are a financial analyst specializing in congressional trading disclosures.
Analyze the following post with high precision.

POST:
From: %s
Content: %s

BULLISH signals: purchases, new long positions, call options, position increases, accumulation.
BEARISH signals: sales, short positions, put options, position decreases, liquidation.

The stock symbol must appear in the post prefixed with $. Ignore unclear symbols.

Trade magnitude (integer 1-10):
10 major portfolio change (>$1M or >50%% of position), 8 significant change,
6 moderate change, 5 average trade, 4 small but meaningful, 2 very small, 1 minimal.

Respond ONLY with a JSON object with exactly these fields:
{
  "member_name": string (full name if known, otherwise the handle),
  "company_traded": string (stock symbol with $ prefix),
  "trade_direction": "good" for bullish or "bad" for bearish,
  "trade_magnitude": integer 1-10
}

Respond with null if there is no clear trading activity, the symbol is missing or unclear,
the direction is ambiguous, or confidence is low.`

// BuildPrompt renders the classification prompt for one post.
func BuildPrompt(source model.Source, text string) string {
	return fmt.Sprintf(promptTemplate, source, text)
}
