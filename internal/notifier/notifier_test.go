package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"TradeSentinel/internal/model"
)

func sampleRun() *model.RunResult {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	return &model.RunResult{
		ID:               "run-1",
		StartedAt:        start,
		FinishedAt:       start.Add(42 * time.Second),
		Workers:          2,
		SourcesAttempted: 2,
		ItemsFetched:     10,
		ItemsAdmitted:    3,
		SignalsProduced:  1,
		Signals: []model.TradeSignal{{
			MemberName:       "Jane <Doe>",
			InstrumentSymbol: "ACME",
			Direction:        model.Bullish,
			Magnitude:        7,
			OriginSource:     "janedoe",
		}},
	}
}

func TestFormatRunReport(t *testing.T) {
	msg := FormatRunReport(sampleRun(), nil)
	for _, want := range []string{"2024-03-04", "Signals: 1", "$ACME bullish 7/10", "Jane &lt;Doe&gt;", "42s"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}

	failed := FormatRunReport(nil, errors.New("every source failed"))
	if !strings.Contains(failed, "failed") || !strings.Contains(failed, "every source failed") {
		t.Errorf("failure report = %q", failed)
	}
}

func TestFormatRunReportCapsSignals(t *testing.T) {
	res := sampleRun()
	for i := 0; i < maxListedSignals+5; i++ {
		res.Signals = append(res.Signals, res.Signals[0])
	}
	msg := FormatRunReport(res, nil)
	if !strings.Contains(msg, "and 6 more") {
		t.Errorf("expected truncation note:\n%s", msg)
	}
}

func TestFormatSignalBearish(t *testing.T) {
	got := FormatSignal(model.TradeSignal{InstrumentSymbol: "XYZ", Direction: model.Bearish, Magnitude: 3, MemberName: "Bob", OriginSource: "bob"})
	if !strings.HasPrefix(got, "🔴") || !strings.Contains(got, "3/10") {
		t.Errorf("FormatSignal = %q", got)
	}
}

func TestFormatStatus(t *testing.T) {
	never := FormatStatus(StatusView{State: "idle"})
	if !strings.Contains(never, "Last run: never") {
		t.Errorf("status = %q", never)
	}
	st := FormatStatus(StatusView{
		State:               "idle",
		ConsecutiveFailures: 2,
		LastRunAt:           time.Now(),
		LastError:           "boom",
		LastRun:             sampleRun(),
	})
	for _, want := range []string{"Consecutive failures: 2", "Last error: boom", "Signals: 1"} {
		if !strings.Contains(st, want) {
			t.Errorf("status missing %q:\n%s", want, st)
		}
	}
}

type telegramStub struct {
	mu       sync.Mutex
	failures int
	texts    []string
}

func (s *telegramStub) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
		http.NotFound(w, r)
		return
	}
	if s.failures > 0 {
		s.failures--
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	var payload map[string]string
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.texts = append(s.texts, payload["text"])
	w.Write([]byte(`{"ok":true}`))
}

func newStubNotifier(t *testing.T, stub *telegramStub) *TelegramNotifier {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(srv.Close)
	n := NewTelegramNotifier("token", "42", "")
	n.APIBase = srv.URL
	return n
}

func TestSend(t *testing.T) {
	stub := &telegramStub{}
	n := newStubNotifier(t, stub)
	if err := n.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(stub.texts) != 1 || stub.texts[0] != "hello" {
		t.Errorf("texts = %v", stub.texts)
	}

	stub.failures = 1
	if err := n.Send(context.Background(), "again"); err == nil {
		t.Error("expected error on 502")
	}
}

func TestSendWithRetry(t *testing.T) {
	stub := &telegramStub{failures: 1}
	n := newStubNotifier(t, stub)
	if err := n.SendWithRetry(context.Background(), "retry me", 2); err != nil {
		t.Fatalf("SendWithRetry: %v", err)
	}
	if len(stub.texts) != 1 {
		t.Errorf("texts = %v", stub.texts)
	}

	stub.failures = 10
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.SendWithRetry(ctx, "never", 3); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestReportRunSkipsQuietRuns(t *testing.T) {
	stub := &telegramStub{}
	n := newStubNotifier(t, stub)

	n.ReportRun(context.Background(), &model.RunResult{}, nil)
	if len(stub.texts) != 0 {
		t.Fatalf("quiet run was reported: %v", stub.texts)
	}
	n.ReportRun(context.Background(), sampleRun(), nil)
	n.ReportRestart(context.Background(), 5, errors.New("boom"))
	if len(stub.texts) != 2 {
		t.Fatalf("texts = %v", stub.texts)
	}
	if !strings.Contains(stub.texts[1], "5 consecutive runs failed") {
		t.Errorf("restart alert = %q", stub.texts[1])
	}
}
