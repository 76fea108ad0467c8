package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

var sections = []struct {
	key   string
	title string
}{
	{"safe_zones", "Safe zones"},
	{"allowed_commands", "Allowed commands"},
	{"hosts", "Hosts"},
}

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	for _, sec := range sections {
		changes := filterSection(r.Changes, sec.key)
		if len(changes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s:\n", sec.title)
		for _, c := range changes {
			switch c.Type {
			case "added":
				fmt.Fprintf(&b, "    + %s", c.Item)
			case "removed":
				fmt.Fprintf(&b, "    - %s", c.Item)
			case "changed":
				fmt.Fprintf(&b, "    ~ %s %s → %s", c.Item, c.Old, c.New)
			}
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// Summary renders a one-line count per section, for logs.
func Summary(r *DiffResult) string {
	if !r.HasChanges {
		return "no changes"
	}
	var parts []string
	for _, sec := range sections {
		var added, removed, changed int
		for _, c := range filterSection(r.Changes, sec.key) {
			switch c.Type {
			case "added":
				added++
			case "removed":
				removed++
			case "changed":
				changed++
			}
		}
		if added+removed+changed == 0 {
			continue
		}
		part := fmt.Sprintf("%s +%d -%d", sec.key, added, removed)
		if changed > 0 {
			part += fmt.Sprintf(" ~%d", changed)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterSection(changes []Change, section string) []Change {
	var out []Change
	for _, c := range changes {
		if c.Section == section {
			out = append(out, c)
		}
	}
	return out
}
