package feedwatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/tickerdeck/tickerdeck/internal/config"
)

// --- helpers ----------------------------------------------------------------

// exposition renders a minimal Prometheus text exposition for the tracked
// gateway metrics.
func exposition(sent, dropped, active, clients float64) string {
	return fmt.Sprintf(`# TYPE feed_gateway_messages_sent_total counter
feed_gateway_messages_sent_total %g
# TYPE feed_gateway_messages_dropped_total counter
feed_gateway_messages_dropped_total %g
# TYPE feed_gateway_active_subscriptions gauge
feed_gateway_active_subscriptions %g
# TYPE feed_gateway_connected_clients gauge
feed_gateway_connected_clients %g
`, sent, dropped, active, clients)
}

func families(t *testing.T, text string) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := parseMetrics(strings.NewReader(text))
	if err != nil {
		t.Fatalf("parseMetrics: %v", err)
	}
	return mfs
}

func newWatcher() *Watcher {
	return New(config.FeedHealthConfig{Interval: 15 * time.Second})
}

// --- tests ------------------------------------------------------------------

func TestProcess_FirstScrapeIsUnknown(t *testing.T) {
	w := newWatcher()
	w.process(families(t, exposition(1000, 0, 40, 3)), nil, time.Now())

	h := w.Health()
	if h.State != StateUnknown {
		t.Errorf("State: got %q, want unknown", h.State)
	}
	if h.ActiveSubscriptions != 40 {
		t.Errorf("ActiveSubscriptions: got %v, want 40", h.ActiveSubscriptions)
	}
}

func TestProcess_RatesFromDeltas(t *testing.T) {
	w := newWatcher()
	base := time.Now()

	w.process(families(t, exposition(1000, 10, 40, 3)), nil, base)
	w.process(families(t, exposition(1600, 10, 42, 3)), nil, base.Add(time.Minute))

	h := w.Health()
	if h.State != StateUp {
		t.Errorf("State: got %q, want up", h.State)
	}
	if h.SentPM != 600 {
		t.Errorf("SentPM: got %v, want 600", h.SentPM)
	}
	if h.DroppedPM != 0 {
		t.Errorf("DroppedPM: got %v, want 0", h.DroppedPM)
	}
	if h.DropPct != 0 {
		t.Errorf("DropPct: got %v, want 0", h.DropPct)
	}
}

func TestProcess_DegradedOnDrops(t *testing.T) {
	w := newWatcher()
	base := time.Now()

	w.process(families(t, exposition(1000, 0, 40, 3)), nil, base)
	// 90 sent, 10 dropped over the window: 10% drop rate.
	w.process(families(t, exposition(1090, 10, 40, 3)), nil, base.Add(time.Minute))

	h := w.Health()
	if h.State != StateDegraded {
		t.Errorf("State: got %q, want degraded", h.State)
	}
	if h.DropPct != 10 {
		t.Errorf("DropPct: got %v, want 10", h.DropPct)
	}
}

func TestProcess_ScrapeFailureIsDown(t *testing.T) {
	w := newWatcher()
	w.process(nil, errors.New("connection refused"), time.Now())

	h := w.Health()
	if h.State != StateDown {
		t.Errorf("State: got %q, want down", h.State)
	}
	if h.ErrorMessage == "" {
		t.Error("ErrorMessage: expected non-empty")
	}
}

func TestProcess_CounterResetYieldsZeroDelta(t *testing.T) {
	w := newWatcher()
	base := time.Now()

	w.process(families(t, exposition(5000, 100, 40, 3)), nil, base)
	// Gateway restarted: counters went backwards.
	w.process(families(t, exposition(50, 1, 40, 3)), nil, base.Add(time.Minute))

	h := w.Health()
	if h.SentPM != 0 || h.DroppedPM != 0 {
		t.Errorf("rates after reset: got sent %v dropped %v, want 0/0", h.SentPM, h.DroppedPM)
	}
	if h.State != StateUp {
		t.Errorf("State: got %q, want up", h.State)
	}
}

func TestProcess_UptimeWindow(t *testing.T) {
	w := newWatcher()
	now := time.Now()

	w.process(families(t, exposition(1, 0, 0, 0)), nil, now)
	w.process(nil, errors.New("boom"), now.Add(time.Second))
	w.process(nil, errors.New("boom"), now.Add(2*time.Second))
	w.process(families(t, exposition(2, 0, 0, 0)), nil, now.Add(3*time.Second))

	h := w.Health()
	if h.UptimePct != 50 {
		t.Errorf("UptimePct: got %v, want 50", h.UptimePct)
	}
}

func TestScrape_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, exposition(100, 0, 5, 1))
	}))
	defer srv.Close()

	w := New(config.FeedHealthConfig{MetricsEndpoint: srv.URL, Interval: 15 * time.Second})
	w.scrape(context.Background(), time.Now())

	h := w.Health()
	if h.State != StateUnknown { // first scrape establishes the baseline
		t.Errorf("State: got %q, want unknown", h.State)
	}
	if h.ActiveSubscriptions != 5 {
		t.Errorf("ActiveSubscriptions: got %v, want 5", h.ActiveSubscriptions)
	}
}

func TestScrape_AuthHeaderInjected(t *testing.T) {
	t.Setenv("FW_KEY", "sekrit")

	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("x-feed-key")
		fmt.Fprint(w, exposition(1, 0, 0, 0))
	}))
	defer srv.Close()

	w := New(config.FeedHealthConfig{
		MetricsEndpoint: srv.URL,
		Interval:        15 * time.Second,
		Auth:            config.ScrapeAuthConfig{Mode: "apikey", Header: "x-feed-key", KeyEnv: "FW_KEY"},
	})
	w.scrape(context.Background(), time.Now())

	if gotHeader != "sekrit" {
		t.Errorf("auth header: got %q, want sekrit", gotHeader)
	}
}

func TestScrape_Non200IsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := New(config.FeedHealthConfig{MetricsEndpoint: srv.URL, Interval: 15 * time.Second})
	w.scrape(context.Background(), time.Now())

	if h := w.Health(); h.State != StateDown {
		t.Errorf("State: got %q, want down", h.State)
	}
}
