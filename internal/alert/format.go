package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func headline(event AlertEvent) string {
	if event.Type != "" {
		return event.Type
	}
	return event.Decision
}

func formatSlack(event AlertEvent) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tool:* %s", event.Tool)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Target:* %s", event.Target)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", severityFor(event))},
	}
	if event.Host != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Host:* %s", event.Host)})
	}
	if event.Detail != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Detail:* %s", event.Detail)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("safezone: %s", headline(event)),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	summary := fmt.Sprintf("safezone %s: %s", headline(event), event.Target)
	if event.Target == "" {
		summary = fmt.Sprintf("safezone %s: %s", headline(event), event.Detail)
	}
	payload := map[string]any{
		"event_action": "trigger",
		"dedup_key":    event.ID,
		"payload": map[string]any{
			"summary":  summary,
			"severity": severityFor(event),
			"source":   "safezone",
			"custom_details": map[string]any{
				"tool":        event.Tool,
				"kind":        event.Kind,
				"target":      event.Target,
				"host":        event.Host,
				"reason":      event.Reason,
				"policy_hash": event.PolicyHash,
			},
		},
	}
	return json.Marshal(payload)
}

// severityFor ranks events: escape attempts above ordinary denials.
func severityFor(event AlertEvent) string {
	if event.Type == EventReloadFailed {
		return "critical"
	}
	switch event.Reason {
	case "traversal_attempt", "shell_metacharacter_rejected":
		return "error"
	case "":
		return "info"
	default:
		return "warning"
	}
}
