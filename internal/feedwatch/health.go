package feedwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/tickerdeck/tickerdeck/internal/config"
)

// Feed-gateway metric names we track.
const (
	// Tick delivery counter — total messages pushed to subscribers.
	feedMessagesSent = "feed_gateway_messages_sent_total"

	// Drop counter — messages that could not be delivered and were discarded.
	feedMessagesDropped = "feed_gateway_messages_dropped_total"

	// Gauge — subscription channels currently open on the gateway.
	feedActiveSubscriptions = "feed_gateway_active_subscriptions"

	// Gauge — clients currently connected to the gateway.
	feedConnectedClients = "feed_gateway_connected_clients"
)

// Health states reported for the feed.
const (
	StateUp       = "up"
	StateDegraded = "degraded"
	StateDown     = "down"
	StateUnknown  = "unknown"
)

const (
	// uptimeWindow is the number of recent scrape outcomes tracked for uptime %.
	uptimeWindow = 20

	// degradedDropPct is the drop percentage at which the feed is flagged degraded.
	degradedDropPct = 5.0

	defaultScrapeTimeout = 10 * time.Second
)

// Health is the condensed feed-provider status derived from one scrape cycle.
type Health struct {
	State               string    `json:"state"`
	SentPM              float64   `json:"sent_pm"`
	DroppedPM           float64   `json:"dropped_pm"`
	DropPct             float64   `json:"drop_pct"`
	ActiveSubscriptions float64   `json:"active_subscriptions"`
	ConnectedClients    float64   `json:"connected_clients"`
	UptimePct           float64   `json:"uptime_pct"`
	ScrapedAt           time.Time `json:"scraped_at"`
	ErrorMessage        string    `json:"error_message,omitempty"`
}

// Watcher scrapes the feed provider's metrics endpoint and maintains the
// latest Health snapshot. All exported methods are safe for concurrent use.
type Watcher struct {
	endpoint string
	interval time.Duration
	client   *http.Client

	mu          sync.Mutex
	latest      Health
	prevSent    float64
	prevDropped float64
	prevTime    time.Time
	hasBaseline bool
	history     []bool // circular buffer of scrape outcomes, newest last
}

// New creates a Watcher from the feed-health configuration.
func New(cfg config.FeedHealthConfig) *Watcher {
	return &Watcher{
		endpoint: cfg.MetricsEndpoint,
		interval: cfg.Interval,
		client: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, auth: cfg.Auth},
			Timeout:   defaultScrapeTimeout,
		},
		latest: Health{State: StateUnknown},
	}
}

// Run starts the scrape loop. It blocks until ctx is cancelled. With no
// metrics endpoint configured it idles and the Health stays unknown.
func (w *Watcher) Run(ctx context.Context) {
	if w.endpoint == "" {
		slog.Info("feedwatch: no metrics endpoint configured — feed health disabled")
		<-ctx.Done()
		return
	}

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			w.scrape(ctx, now)
		}
	}
}

// Health returns the most recent snapshot.
func (w *Watcher) Health() Health {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// scrape fetches the endpoint once and folds the result into the state.
func (w *Watcher) scrape(ctx context.Context, now time.Time) {
	mfs, err := fetchMetrics(ctx, w.client, w.endpoint)
	if err != nil {
		slog.Warn("feedwatch: scrape failed", "endpoint", w.endpoint, "err", err)
	}
	w.process(mfs, err, now)
}

// process derives the next Health from one scrape outcome. Split from scrape
// so tests control inputs and the clock directly.
func (w *Watcher) process(mfs map[string]*dto.MetricFamily, scrapeErr error, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.recordScrape(scrapeErr == nil)

	h := Health{
		UptimePct: w.uptimePct(),
		ScrapedAt: now,
	}

	if scrapeErr != nil {
		h.State = StateDown
		h.ErrorMessage = scrapeErr.Error()
		w.latest = h
		return
	}

	sent := sumFamily(mfs[feedMessagesSent])
	dropped := sumFamily(mfs[feedMessagesDropped])
	h.ActiveSubscriptions = sumFamily(mfs[feedActiveSubscriptions])
	h.ConnectedClients = sumFamily(mfs[feedConnectedClients])

	if !w.hasBaseline {
		// First successful scrape — store counters but report unknown,
		// since rates cannot be computed without a delta.
		h.State = StateUnknown
		w.updateBaseline(sent, dropped, now)
		w.latest = h
		return
	}

	elapsed := now.Sub(w.prevTime).Minutes()
	if elapsed <= 0 {
		elapsed = 1 // guard against zero or negative clock drift
	}

	sentDelta := deltaOf(sent, w.prevSent)
	dropDelta := deltaOf(dropped, w.prevDropped)
	h.SentPM = sentDelta / elapsed
	h.DroppedPM = dropDelta / elapsed

	if total := sentDelta + dropDelta; total > 0 {
		h.DropPct = dropDelta / total * 100
	}

	if h.DropPct >= degradedDropPct {
		h.State = StateDegraded
	} else {
		h.State = StateUp
	}

	w.updateBaseline(sent, dropped, now)
	w.latest = h
}

func (w *Watcher) updateBaseline(sent, dropped float64, now time.Time) {
	w.prevSent = sent
	w.prevDropped = dropped
	w.prevTime = now
	w.hasBaseline = true
}

func (w *Watcher) recordScrape(success bool) {
	if len(w.history) >= uptimeWindow {
		w.history = w.history[1:]
	}
	w.history = append(w.history, success)
}

func (w *Watcher) uptimePct() float64 {
	if len(w.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range w.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(w.history)) * 100
}

// deltaOf returns the positive counter delta between current and previous.
// If current < previous (counter reset after a gateway restart), returns 0.
func deltaOf(current, previous float64) float64 {
	if current < previous {
		return 0
	}
	return current - previous
}

// authRoundTripper injects authentication headers into every scrape request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.ScrapeAuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	}
	return t.base.RoundTrip(req)
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	// Non-empty result with a non-nil err means partial parse (trailing
	// lines, format warnings). Treat as success.
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
