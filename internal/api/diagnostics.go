package api

import (
	"fmt"

	"github.com/tickerdeck/tickerdeck/internal/feedwatch"
)

// DiagnosticHint is one human-readable insight about the dashboard's state.
// The UI displays these as chips in the header; clicking one shows Detail,
// written in plain English like an assistant explaining the situation.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint (e.g. fill %).
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives diagnostic hints from the current subscription
// and feed state. Ordered roughly by severity: feed problems first, then
// capacity pressure, then lock status.
func computeDiagnostics(sub SubscriptionsResponse, feed feedwatch.Health) []DiagnosticHint {
	var hints []DiagnosticHint

	switch feed.State {
	case feedwatch.StateDown:
		detail := "The quote feed provider is unreachable. Prices on screen will go " +
			"stale and disappear once their TTL expires. Check that the provider is up " +
			"and that the metrics endpoint and credentials in the config are correct."
		if feed.ErrorMessage != "" {
			detail += fmt.Sprintf(" Last error: %q.", feed.ErrorMessage)
		}
		hints = append(hints, DiagnosticHint{
			Key:    "feed_down",
			Level:  "critical",
			Title:  "Feed unreachable",
			Detail: detail,
		})
	case feedwatch.StateDegraded:
		v := feed.DropPct
		hints = append(hints, DiagnosticHint{
			Key:   "feed_degraded",
			Level: "warning",
			Title: fmt.Sprintf("%.1f%% feed drops", feed.DropPct),
			Detail: fmt.Sprintf(
				"The feed provider is dropping %.1f%% of outgoing messages "+
					"(%.0f dropped per minute out of %.0f sent). Some ticks will never "+
					"reach this dashboard. This usually means the provider is overloaded "+
					"or a consumer is too slow to drain its buffer.",
				feed.DropPct, feed.DroppedPM, feed.SentPM,
			),
			Value: &v,
		})
	}

	if h := fillHint("fast", sub.Counts.Fast, sub.Limits.Fast); h != nil {
		hints = append(hints, *h)
	}
	if h := fillHint("slow", sub.Counts.Slow, sub.Limits.Slow); h != nil {
		hints = append(hints, *h)
	}

	if sub.Locked {
		detail := fmt.Sprintf(
			"A subscription lock is engaged: the fast tier is restricted to its "+
				"allow-list and its capacity is pinned at %d. New fast registrations "+
				"compete for those slots and the oldest entries are evicted first. "+
				"Release the lock to restore the visible-count capacity (evicted "+
				"subscriptions are not re-admitted automatically).",
			sub.Limits.Fast,
		)
		if sub.Limits.Fast < sub.Limits.Normal {
			detail += fmt.Sprintf(
				" The unlocked capacity would be %d, so the lock is currently the "+
					"limiting factor.", sub.Limits.Normal)
		}
		hints = append(hints, DiagnosticHint{
			Key:    "lock_active",
			Level:  "info",
			Title:  "Lock engaged",
			Detail: detail,
		})
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"Both subscription tiers have headroom (%d/%d fast, %d/%d slow), "+
					"no lock is engaged, and the feed is healthy. Nothing needs attention.",
				sub.Counts.Fast, sub.Limits.Fast, sub.Counts.Slow, sub.Limits.Slow,
			),
		})
	}

	return hints
}

// fillHint flags a tier that is at or near its capacity. Returns nil when the
// tier has comfortable headroom or no capacity at all.
func fillHint(tier string, count, limit int) *DiagnosticHint {
	if limit <= 0 || count <= 0 {
		return nil
	}
	pct := float64(count) / float64(limit) * 100
	if pct < 90 {
		return nil
	}

	v := pct
	h := DiagnosticHint{
		Key:   "fill_" + tier,
		Value: &v,
	}
	if count >= limit {
		h.Level = "warning"
		h.Title = fmt.Sprintf("%s tier full", tier)
		h.Detail = fmt.Sprintf(
			"The %s tier is at capacity (%d of %d slots). Every new registration "+
				"now evicts the oldest subscription, so symbols the user scrolled past "+
				"recently will stop updating. If this persists, the visible panes are "+
				"asking for more symbols than the layout reports.",
			tier, count, limit,
		)
	} else {
		h.Level = "info"
		h.Title = fmt.Sprintf("%s tier %.0f%% full", tier, pct)
		h.Detail = fmt.Sprintf(
			"The %s tier is %.0f%% full (%d of %d slots). A few more registrations "+
				"will start evicting the oldest subscriptions. No action needed unless "+
				"the fill keeps climbing.",
			tier, pct, count, limit,
		)
	}
	return &h
}
