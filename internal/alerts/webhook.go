package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver fans an alert out to every configured webhook target. Delivery
// errors are logged and never propagate into the evaluation path.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		body, ok := payloadFor(wh.Type, a)
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"err", err,
			)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type,
			"rule", a.RuleName,
			"state", a.State,
		)
	}
}

// payloadFor renders the alert into the target system's message format.
// ok is false for webhook types this engine does not know.
func payloadFor(kind string, a *Alert) (body []byte, ok bool) {
	var v interface{}
	switch kind {
	case "slack":
		v = map[string]string{
			"text": fmt.Sprintf("*%s* %s (%s)", severityPrefix(a.Severity), a.Message, a.State),
		}
	case "teams":
		v = map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": severityColor(a.Severity),
			"summary":    a.RuleName,
			"title":      "Tickerdeck alert: " + a.RuleName,
			"text":       a.Message,
		}
	case "http":
		v = map[string]interface{}{
			"source": "tickerdeck",
			"state":  a.State,
			"alert":  a,
		}
	default:
		return nil, false
	}
	body, _ = json.Marshal(v)
	return body, true
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alerts: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("alerts: post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("alerts: webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityPrefix(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "E53E51"
	case "warning":
		return "F5A623"
	default:
		return "2D9CDB"
	}
}
