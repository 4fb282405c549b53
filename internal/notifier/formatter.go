package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"TradeSentinel/internal/model"
)

// maxListedSignals caps how many signals a single report lists.
const maxListedSignals = 20

// FormatRunReport formats a finished run into a Telegram message.
func FormatRunReport(res *model.RunResult, err error) string {
	var b strings.Builder

	if err != nil {
		b.WriteString("❌ <b>TradeSentinel run failed</b>\n")
		b.WriteString(fmt.Sprintf("Error: %s\n", html.EscapeString(err.Error())))
	} else {
		b.WriteString("📊 <b>TradeSentinel run</b>")
		if res != nil {
			b.WriteString(fmt.Sprintf(" | %s", res.StartedAt.Format(model.DateLayout)))
		}
		b.WriteString("\n")
	}
	if res == nil {
		return b.String()
	}

	b.WriteString(fmt.Sprintf("\nSources: %d (%d failed) | Workers: %d\n", res.SourcesAttempted, res.SourcesFailed, res.Workers))
	b.WriteString(fmt.Sprintf("Posts: %d fetched, %d with tickers", res.ItemsFetched, res.ItemsAdmitted))
	if res.Duplicates > 0 {
		b.WriteString(fmt.Sprintf(", %d already seen", res.Duplicates))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Signals: %d | Rejected: %d | Errors: %d", res.SignalsProduced, res.Rejected, res.Errors))
	if res.Timeouts > 0 {
		b.WriteString(fmt.Sprintf(" | Timeouts: %d", res.Timeouts))
	}
	b.WriteString(fmt.Sprintf("\nDuration: %s\n", res.Duration().Round(time.Second)))

	if len(res.Signals) > 0 {
		b.WriteString("\n💹 <b>Signals:</b>\n")
		for i, sig := range res.Signals {
			if i == maxListedSignals {
				b.WriteString(fmt.Sprintf("  ... and %d more\n", len(res.Signals)-maxListedSignals))
				break
			}
			b.WriteString("  " + FormatSignal(sig) + "\n")
		}
	}
	return b.String()
}

// FormatSignal renders a single signal on one line.
func FormatSignal(sig model.TradeSignal) string {
	icon := "🟢"
	if sig.Direction == model.Bearish {
		icon = "🔴"
	}
	return fmt.Sprintf("%s $%s %s %d/10 | %s (@%s)",
		icon, html.EscapeString(sig.InstrumentSymbol), sig.Direction, sig.Magnitude,
		html.EscapeString(sig.MemberName), html.EscapeString(string(sig.OriginSource)))
}

// FormatRestartAlert formats the message sent before the process asks to be restarted.
func FormatRestartAlert(failures int, err error) string {
	msg := fmt.Sprintf("🔁 <b>TradeSentinel restarting</b>\n\n%d consecutive runs failed.\n", failures)
	if err != nil {
		msg += fmt.Sprintf("Last error: %s\n", html.EscapeString(err.Error()))
	}
	return msg
}

// StatusView is what FormatStatus renders.
type StatusView struct {
	State               string
	ConsecutiveFailures int
	LastRunAt           time.Time
	LastError           string
	LastRun             *model.RunResult
	NextRun             time.Time
	// RecentRuns lists recorded runs, newest first.
	RecentRuns []model.RunResult
	// SignalsToday is the recorded signal count for today, nil when unknown.
	SignalsToday *int
}

// FormatStatus formats the supervisor status for the /status command.
func FormatStatus(v StatusView) string {
	var b strings.Builder
	b.WriteString("🛰 <b>TradeSentinel status</b>\n\n")
	b.WriteString(fmt.Sprintf("State: %s\n", v.State))
	b.WriteString(fmt.Sprintf("Consecutive failures: %d\n", v.ConsecutiveFailures))
	if !v.NextRun.IsZero() {
		b.WriteString(fmt.Sprintf("Next run: %s\n", v.NextRun.Format("2006-01-02 15:04 MST")))
	}
	if v.SignalsToday != nil {
		b.WriteString(fmt.Sprintf("Signals recorded today: %d\n", *v.SignalsToday))
	}
	if v.LastRunAt.IsZero() {
		b.WriteString("Last run: never\n")
	} else {
		b.WriteString(fmt.Sprintf("Last run: %s\n", v.LastRunAt.Format("2006-01-02 15:04 MST")))
		if v.LastError != "" {
			b.WriteString(fmt.Sprintf("Last error: %s\n", html.EscapeString(v.LastError)))
		}
		if r := v.LastRun; r != nil {
			b.WriteString(fmt.Sprintf("Signals: %d | Errors: %d | Timeouts: %d\n", r.SignalsProduced, r.Errors, r.Timeouts))
		}
	}
	if len(v.RecentRuns) > 0 {
		b.WriteString("\n🗂 <b>Recent runs:</b>\n")
		for _, r := range v.RecentRuns {
			b.WriteString(fmt.Sprintf("  %s | %d signals, %d errors, %d timeouts\n",
				r.StartedAt.Format("01-02 15:04"), r.SignalsProduced, r.Errors, r.Timeouts))
		}
	}
	return b.String()
}
