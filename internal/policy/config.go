package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSafeZones are used when the config declares no zones at all.
// Entries that do not exist on this host are skipped.
var DefaultSafeZones = []string{
	"~/Documents",
	"~/Downloads",
	"~/Desktop",
}

// DefaultAllowedCommands is the remote command whitelist used when the ssh
// section does not set allowed_commands.
var DefaultAllowedCommands = []string{
	"ls", "pwd", "whoami", "hostname", "uptime", "df", "free",
	"cat", "head", "tail", "grep", "find", "wc",
	"ps", "top", "htop",
	"docker", "docker-compose",
	"git", "npm", "node", "python", "pip",
	"systemctl", "service",
	"ping", "curl", "wget",
	"date", "cal", "echo",
}

// PathsConfig is the legacy "paths" section.
type PathsConfig struct {
	SafeZones []string `yaml:"safe_zones"`
	Workspace string   `yaml:"workspace"`
}

// HostConfig is one entry under ssh.hosts.
type HostConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	KeyFile     string `yaml:"key_file"`
	PasswordEnv string `yaml:"password_env"`
}

// SSHConfig configures remote command execution.
type SSHConfig struct {
	AllowedCommands []string              `yaml:"allowed_commands"`
	Hosts           map[string]HostConfig `yaml:"hosts"`
}

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // decisions, reasons or types: ["deny", "traversal_attempt", "reload_failed"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Config is the on-disk policy file.
type Config struct {
	SafeZones []string      `yaml:"safe_zones"`
	Paths     PathsConfig   `yaml:"paths"`
	SSH       SSHConfig     `yaml:"ssh"`
	Alerts    []AlertConfig `yaml:"alerts"`
}

// DefaultConfig returns the built-in configuration: default command
// whitelist, no declared zones, no hosts.
func DefaultConfig() *Config {
	return &Config{
		SSH: SSHConfig{
			AllowedCommands: append([]string(nil), DefaultAllowedCommands...),
		},
	}
}

// DefaultPath returns ~/.safezone/policy.yaml, or "" if the home directory
// is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".safezone", "policy.yaml")
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.safezone/policy.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return DefaultConfig(), hashBytes(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashBytes(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read policy config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, hashBytes(data), nil
}

// ParseConfig decodes YAML over the defaults. Keys absent from data keep
// their default values; an explicit empty allowed_commands list disables
// every command.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	return cfg, nil
}

// ZoneSpec is one zone entry after environment expansion.
type ZoneSpec struct {
	Path string
	// Declared is false for built-in defaults, which may be absent.
	Declared bool
}

// ZoneSpecs returns the zones to canonicalize, in precedence order:
// top-level safe_zones, then paths.safe_zones, then the defaults. The
// workspace, when set, is always appended as a declared zone.
func (c *Config) ZoneSpecs() []ZoneSpec {
	var specs []ZoneSpec
	switch {
	case len(c.SafeZones) > 0:
		specs = declared(c.SafeZones)
	case len(c.Paths.SafeZones) > 0:
		specs = declared(c.Paths.SafeZones)
	default:
		for _, z := range DefaultSafeZones {
			specs = append(specs, ZoneSpec{Path: ExpandEnv(z)})
		}
	}
	if ws := strings.TrimSpace(c.Paths.Workspace); ws != "" {
		specs = append(specs, ZoneSpec{Path: ExpandEnv(ws), Declared: true})
	}
	return specs
}

func declared(zones []string) []ZoneSpec {
	specs := make([]ZoneSpec, 0, len(zones))
	for _, z := range zones {
		specs = append(specs, ZoneSpec{Path: ExpandEnv(z), Declared: true})
	}
	return specs
}

var windowsEnvRef = regexp.MustCompile(`%([^%]+)%`)

// ExpandEnv expands %VAR%, $VAR, ${VAR} and a leading ~ in a path string.
// Unset variables are left as written.
func ExpandEnv(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	s = windowsEnvRef.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := os.LookupEnv(m[1 : len(m)-1]); ok {
			return v
		}
		return m
	})
	s = os.Expand(s, func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return "${" + name + "}"
	})
	if s == "~" || strings.HasPrefix(s, "~/") || strings.HasPrefix(s, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			if s == "~" {
				return home
			}
			return filepath.Join(home, s[2:])
		}
	}
	return s
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# safezone policy configuration
# Generated by: safezone init-policy
#
# Decision rules (cannot be changed):
#   read        -> always allowed
#   write       -> allowed only inside a safe zone
#   delete      -> allowed only inside a safe zone
#   copy_in     -> destination must be inside a safe zone, source may be anywhere
#   copy_out    -> always denied
#   move        -> source and destination must both be inside a safe zone
#   remote exec -> base command must be listed below; chaining is always denied

# Directories where write/delete/create operations are permitted.
# Every entry must exist. Supports ~, $VAR, ${VAR} and %VAR%.
# When empty, ~/Documents, ~/Downloads and ~/Desktop are used if present.
safe_zones:
  - ~/Documents
  - ~/Downloads

paths:
  # Optional default workspace; always treated as an extra safe zone.
  workspace: ""

ssh:
  # Bare command names. Only the first word of a command line is matched,
  # case-sensitively; /usr/bin/git matches git.
  allowed_commands:
    - ls
    - pwd
    - whoami
    - hostname
    - uptime
    - df
    - free
    - cat
    - head
    - tail
    - grep
    - git
    - docker
    - systemctl

  # Hosts are used for audit labels. Credentials are referenced, never stored.
  hosts: {}
  #  web1:
  #    host: 10.0.0.5
  #    port: 22
  #    user: deploy
  #    key_file: ~/.ssh/web1

# Webhooks notified on deny verdicts.
alerts: []
#  - url: https://hooks.slack.com/services/...
#    format: slack
#    events: [deny]
`
}
