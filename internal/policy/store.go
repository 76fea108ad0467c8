package policy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/safezone/internal/canon"
)

// ErrInvalidCommand is wrapped by ConfigError for malformed whitelist entries.
var ErrInvalidCommand = errors.New("allowed command must be a bare name")

// ConfigError reports a safe-zone or whitelist declaration that cannot be
// loaded. It is fatal at startup and rejects a reload.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Zone is a canonical safe-zone root.
type Zone struct {
	// Root is the canonical path (symlinks resolved).
	Root string `json:"root"`
	// Lexical is the declared path made absolute and cleaned, kept so the
	// early traversal filter does not misfire on symlinked aliases.
	Lexical string `json:"lexical"`
}

// HostProfile is a configured SSH target. Credentials are referenced by
// location only and are never read here.
type HostProfile struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Port    int    `json:"port"`
	User    string `json:"user"`
	// CredentialRef is "key:<path>", "env:<VAR>" or "".
	CredentialRef string `json:"credential_ref,omitempty"`
}

// Label renders user@address:port for logs.
func (h HostProfile) Label() string {
	port := h.Port
	if port == 0 {
		port = 22
	}
	addr := h.Address
	if addr == "" {
		addr = "?"
	}
	user := h.User
	if user == "" {
		user = "?"
	}
	return user + "@" + addr + ":" + strconv.Itoa(port)
}

// Options are the raw inputs for New.
type Options struct {
	Zones    []ZoneSpec
	Commands []string
	Hosts    map[string]HostConfig
	Hash     string
}

// Store is an immutable policy snapshot. All methods are safe for
// concurrent use; nothing mutates a Store after New returns.
type Store struct {
	zones    []Zone
	commands map[string]struct{}
	hosts    map[string]HostProfile
	hash     string
	loadedAt time.Time
}

// New canonicalizes zones and validates the whitelist. A declared zone that
// does not exist, or is not a directory, is a ConfigError.
func New(opts Options) (*Store, error) {
	s := &Store{
		commands: make(map[string]struct{}, len(opts.Commands)),
		hosts:    make(map[string]HostProfile, len(opts.Hosts)),
		hash:     opts.Hash,
		loadedAt: time.Now().UTC(),
	}

	seen := make(map[string]bool)
	for _, zs := range opts.Zones {
		if strings.TrimSpace(zs.Path) == "" {
			if zs.Declared {
				return nil, &ConfigError{Field: "safe zone", Value: zs.Path, Err: canon.ErrEmptyPath}
			}
			continue
		}
		root, err := canon.Root(zs.Path)
		if err != nil {
			if !zs.Declared {
				continue
			}
			return nil, &ConfigError{Field: "safe zone", Value: zs.Path, Err: err}
		}
		key := canon.Key(root)
		if seen[key] {
			continue
		}
		seen[key] = true
		lexical, err := canon.Lexical(zs.Path)
		if err != nil {
			lexical = root
		}
		s.zones = append(s.zones, Zone{Root: root, Lexical: lexical})
	}

	for _, c := range opts.Commands {
		name := strings.TrimSpace(c)
		if name == "" || strings.ContainsAny(name, " \t\r\n/\\") {
			return nil, &ConfigError{Field: "allowed command", Value: c, Err: ErrInvalidCommand}
		}
		s.commands[name] = struct{}{}
	}

	for name, h := range opts.Hosts {
		prof := HostProfile{Name: name, Address: h.Host, Port: h.Port, User: h.User}
		switch {
		case h.KeyFile != "":
			prof.CredentialRef = "key:" + ExpandEnv(h.KeyFile)
		case h.PasswordEnv != "":
			prof.CredentialRef = "env:" + h.PasswordEnv
		}
		s.hosts[name] = prof
	}

	return s, nil
}

// FromConfig builds a Store from a parsed Config.
func FromConfig(cfg *Config, hash string) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return New(Options{
		Zones:    cfg.ZoneSpecs(),
		Commands: cfg.SSH.AllowedCommands,
		Hosts:    cfg.SSH.Hosts,
		Hash:     hash,
	})
}

// Load reads, parses and canonicalizes a policy file in one step.
func Load(path string) (*Store, *Config, error) {
	cfg, hash, err := LoadConfigWithHash(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := FromConfig(cfg, hash)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

// Zones returns a copy of the canonical zones in declaration order.
func (s *Store) Zones() []Zone {
	return append([]Zone(nil), s.zones...)
}

// ContainingZone returns the first zone whose root equals or contains the
// canonical path p.
func (s *Store) ContainingZone(p string) (Zone, bool) {
	for _, z := range s.zones {
		if canon.Within(z.Root, p) {
			return z, true
		}
	}
	return Zone{}, false
}

// LexicallyContained reports whether an absolute, cleaned path lies under any
// zone's canonical or declared root.
func (s *Store) LexicallyContained(p string) bool {
	for _, z := range s.zones {
		if canon.Within(z.Root, p) || canon.Within(z.Lexical, p) {
			return true
		}
	}
	return false
}

// AllowsCommand reports whether name is whitelisted. Matching is exact and
// case-sensitive.
func (s *Store) AllowsCommand(name string) bool {
	_, ok := s.commands[name]
	return ok
}

// Commands returns the whitelist in sorted order.
func (s *Store) Commands() []string {
	out := make([]string, 0, len(s.commands))
	for c := range s.commands {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Host looks up a configured host profile.
func (s *Store) Host(name string) (HostProfile, bool) {
	h, ok := s.hosts[name]
	return h, ok
}

// Hosts returns every host profile sorted by name.
func (s *Store) Hosts() []HostProfile {
	out := make([]HostProfile, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Hash is the SHA-256 of the policy file this snapshot was built from.
func (s *Store) Hash() string { return s.hash }

// LoadedAt is when the snapshot was built.
func (s *Store) LoadedAt() time.Time { return s.loadedAt }
