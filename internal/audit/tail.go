package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects entries for Read. Zero fields match everything.
type Filter struct {
	Decision string
	Reason   string
	Tool     string
	Since    time.Time
	// Limit keeps only the last N matching entries when > 0.
	Limit int
}

// Summary counts decisions across the matched entries.
type Summary struct {
	Total          int            `json:"total"`
	AllowCount     int            `json:"allow_count"`
	DenyCount      int            `json:"deny_count"`
	ByReason       map[string]int `json:"by_reason,omitempty"`
	FirstTimestamp string         `json:"first_timestamp,omitempty"`
	LastTimestamp  string         `json:"last_timestamp,omitempty"`
}

// Report is the result of Read.
type Report struct {
	Entries []AuditEntry `json:"entries"`
	Summary Summary      `json:"summary"`
}

// Read scans the log at path and returns matching entries. Malformed lines
// are skipped; use Verify to detect them.
func Read(path string, filter Filter) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	report := &Report{}
	scanner := newScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.matches(entry) {
			continue
		}
		report.Entries = append(report.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	if filter.Limit > 0 && len(report.Entries) > filter.Limit {
		report.Entries = report.Entries[len(report.Entries)-filter.Limit:]
	}
	for _, e := range report.Entries {
		report.Summary.add(e)
	}
	return report, nil
}

func (f Filter) matches(e AuditEntry) bool {
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if f.Reason != "" && e.Reason != f.Reason {
		return false
	}
	if f.Tool != "" && e.Action.Tool != f.Tool {
		return false
	}
	if !f.Since.IsZero() {
		ts, err := time.Parse(TimestampFormat, e.Timestamp)
		if err != nil || ts.Before(f.Since) {
			return false
		}
	}
	return true
}

func (s *Summary) add(e AuditEntry) {
	s.Total++
	switch e.Decision {
	case "allow":
		s.AllowCount++
	case "deny":
		s.DenyCount++
	}
	if e.Reason != "" {
		if s.ByReason == nil {
			s.ByReason = make(map[string]int)
		}
		s.ByReason[e.Reason]++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
