package supervisor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"TradeSentinel/internal/model"
	"TradeSentinel/internal/notifier"
)

// statusHistoryRuns is how many recorded runs /status lists.
const statusHistoryRuns = 5

// HandleCommand processes a chat command and returns a reply.
func (s *Supervisor) HandleCommand(command string) string {
	cmd, _, _ := strings.Cut(strings.TrimSpace(command), "@")
	switch strings.ToLower(cmd) {
	case "/status":
		return notifier.FormatStatus(s.statusView())
	case "/run":
		if s.Trigger("command") {
			return "▶️ Run queued"
		}
		return "⏳ A run is already queued"
	default:
		return "Available commands:\n• /status\n• /run"
	}
}

func (s *Supervisor) statusView() notifier.StatusView {
	st := s.Status()
	v := notifier.StatusView{
		State:               string(st.State),
		ConsecutiveFailures: st.ConsecutiveFailures,
		LastRunAt:           st.LastRunAt,
		LastError:           st.LastError,
		LastRun:             st.LastRun,
		NextRun:             st.NextRun,
	}
	if s.cfg.History == nil {
		return v
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runs, err := s.cfg.History.RecentRuns(ctx, statusHistoryRuns)
	if err != nil {
		slog.Warn("Failed to load run history", "stage", "status", "error", err)
	} else {
		v.RecentRuns = runs
	}
	today := s.now().In(s.cfg.Location).Format(model.DateLayout)
	if n, err := s.cfg.History.CountSignals(ctx, today); err != nil {
		slog.Warn("Failed to count today's signals", "stage", "status", "error", err)
	} else {
		v.SignalsToday = &n
	}
	return v
}
