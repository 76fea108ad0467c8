package policydiff

import (
	"sort"

	"github.com/ppiankov/safezone/internal/policy"
)

// Change is one added, removed or changed item in a policy section.
type Change struct {
	Section string `json:"section"` // "safe_zones", "allowed_commands", "hosts"
	Type    string `json:"type"`    // "added", "removed", "changed"
	Item    string `json:"item"`
	Old     string `json:"old,omitempty"`
	New     string `json:"new,omitempty"`
	// Comment is "looser" when the change widens what is permitted and
	// "stricter" when it narrows it.
	Comment string `json:"comment,omitempty"`
}

// DiffResult holds the comparison of two policy snapshots.
type DiffResult struct {
	OldPath    string   `json:"old_path"`
	NewPath    string   `json:"new_path"`
	OldHash    string   `json:"old_hash"`
	NewHash    string   `json:"new_hash"`
	Changes    []Change `json:"changes"`
	HasChanges bool     `json:"has_changes"`
}

// Diff compares two canonical policy snapshots. Zones are compared after
// canonicalization, so a declared path that changed spelling but resolves
// to the same directory is not a change.
func Diff(old, new *policy.Store) *DiffResult {
	r := &DiffResult{OldHash: old.Hash(), NewHash: new.Hash()}

	diffSet(r, "safe_zones", zoneRoots(old), zoneRoots(new))
	diffSet(r, "allowed_commands", old.Commands(), new.Commands())
	diffHosts(r, old.Hosts(), new.Hosts())

	r.HasChanges = len(r.Changes) > 0
	return r
}

// Loosened reports whether any change widens what the policy permits.
func (r *DiffResult) Loosened() bool {
	for _, c := range r.Changes {
		if c.Comment == "looser" {
			return true
		}
	}
	return false
}

func diffSet(r *DiffResult, section string, oldItems, newItems []string) {
	oldSet := make(map[string]bool, len(oldItems))
	for _, k := range oldItems {
		oldSet[k] = true
	}
	newSet := make(map[string]bool, len(newItems))
	for _, k := range newItems {
		newSet[k] = true
	}

	for _, k := range sorted(newItems) {
		if !oldSet[k] {
			r.Changes = append(r.Changes, Change{Section: section, Type: "added", Item: k, Comment: "looser"})
		}
	}
	for _, k := range sorted(oldItems) {
		if !newSet[k] {
			r.Changes = append(r.Changes, Change{Section: section, Type: "removed", Item: k, Comment: "stricter"})
		}
	}
}

// Host entries do not widen or narrow the whitelist, so they carry no
// comment.
func diffHosts(r *DiffResult, oldHosts, newHosts []policy.HostProfile) {
	oldMap := make(map[string]policy.HostProfile, len(oldHosts))
	for _, h := range oldHosts {
		oldMap[h.Name] = h
	}
	newMap := make(map[string]policy.HostProfile, len(newHosts))
	for _, h := range newHosts {
		newMap[h.Name] = h
	}

	for _, h := range newHosts {
		prev, ok := oldMap[h.Name]
		switch {
		case !ok:
			r.Changes = append(r.Changes, Change{Section: "hosts", Type: "added", Item: h.Name, New: h.Label()})
		case prev.Label() != h.Label() || prev.CredentialRef != h.CredentialRef:
			r.Changes = append(r.Changes, Change{Section: "hosts", Type: "changed", Item: h.Name, Old: prev.Label(), New: h.Label()})
		}
	}
	for _, h := range oldHosts {
		if _, ok := newMap[h.Name]; !ok {
			r.Changes = append(r.Changes, Change{Section: "hosts", Type: "removed", Item: h.Name, Old: h.Label()})
		}
	}
}

func zoneRoots(s *policy.Store) []string {
	zones := s.Zones()
	roots := make([]string, 0, len(zones))
	for _, z := range zones {
		roots = append(roots, z.Root)
	}
	return roots
}

func sorted(items []string) []string {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return out
}
