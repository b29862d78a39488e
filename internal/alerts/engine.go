package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tickerdeck/tickerdeck/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Stats is one evaluation sample of the deck's health.
type Stats struct {
	FastFillPct   float64 // fast pool size as a percentage of its limit
	SlowFillPct   float64
	EvictionsPM   float64 // eviction rate across both tiers
	FeedUptimePct float64
	FeedState     string // "up" | "degraded" | "down" | "unknown"
}

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"
}

// Engine evaluates alert rules against Stats samples and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
}

// New creates an Engine from the alert configuration.
// An Engine with empty rules is valid — Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate tests all configured rules against one stats sample. Rules whose
// condition holds fire (subject to per-rule cooldown); firing alerts whose
// condition no longer holds resolve. Webhook delivery happens asynchronously.
func (e *Engine) Evaluate(stats Stats) {
	if len(e.rules) == 0 {
		return
	}

	now := time.Now()
	for _, rule := range e.rules {
		if holds, value := evalCondition(rule.Condition, stats); holds {
			e.fire(rule, value, now)
		} else {
			e.resolve(rule, now)
		}
	}
}

// fire records a new alert for rule unless its cooldown is still running.
func (e *Engine) fire(rule config.AlertRule, value float64, now time.Time) {
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}

	e.mu.Lock()
	if now.Sub(e.lastFire[rule.Name]) <= cooldown {
		e.mu.Unlock()
		return
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%d", rule.Name, now.UnixNano()),
		RuleName: rule.Name,
		Severity: sev,
		Value:    value,
		Message: fmt.Sprintf("[%s] %s fired: %s = %.2f",
			sev, rule.Name, rule.Condition, value),
		FiredAt: now,
		State:   "firing",
	}
	e.active[rule.Name] = a
	e.lastFire[rule.Name] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alert fired",
		"rule", rule.Name,
		"value", value,
		"severity", sev,
	)
	go e.deliver(&alertCopy)
}

// resolve closes rule's firing alert, if any, and moves it to the history.
func (e *Engine) resolve(rule config.AlertRule, now time.Time) {
	e.mu.Lock()
	a, ok := e.active[rule.Name]
	if !ok || a.State != "firing" {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = "resolved"
	a.ResolvedAt = &resolved
	delete(e.active, rule.Name)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alert resolved", "rule", rule.Name)
	go e.deliver(&alertCopy)
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}
