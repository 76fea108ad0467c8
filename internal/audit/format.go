package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTable renders a Report as a human-readable listing.
func FormatTable(report *Report) string {
	if len(report.Entries) == 0 {
		return "No audit entries found.\n"
	}

	var b strings.Builder
	b.WriteString(separator + "\n")
	for _, e := range report.Entries {
		target := e.Action.Target
		if e.Action.Host != "" {
			target = e.Action.Host + " $ " + target
		}
		b.WriteString(fmt.Sprintf("%-19s %-5s %-28s %-14s %s\n",
			formatTimestamp(e.Timestamp),
			strings.ToUpper(e.Decision),
			truncate(e.Reason, 28),
			truncate(e.Action.Tool, 14),
			truncate(target, 60)))
	}
	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(report.Summary))
	return b.String()
}

// FormatJSON renders a Report as indented JSON.
func FormatJSON(report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit report: %w", err)
	}
	return string(data), nil
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatSummary(s Summary) string {
	line := fmt.Sprintf("Summary: %d entries, %d allow, %d deny", s.Total, s.AllowCount, s.DenyCount)
	if len(s.ByReason) == 0 {
		return line + "\n"
	}
	reasons := make([]string, 0, len(s.ByReason))
	for r := range s.ByReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%s=%d", r, s.ByReason[r]))
	}
	return line + " | " + strings.Join(parts, ", ") + "\n"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
