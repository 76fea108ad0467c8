// Package integrity verifies the running binary's checksum at startup.
// The expected hash is embedded at build time via ldflags or read from a
// checksum file; on mismatch a tamper event is recorded and alerted, and
// the process refuses to start.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/safezone/internal/alert"
)

// ExpectedHash is set at build time via:
//
//	-ldflags "-X github.com/ppiankov/safezone/internal/integrity.ExpectedHash=<sha256hex>"
var ExpectedHash string

// EventBinaryTamper is the alert Type for checksum mismatches.
const EventBinaryTamper = "binary_tamper"

// DefaultChecksumPaths are searched in order when ExpectedHash is empty.
var DefaultChecksumPaths = []string{
	"/etc/safezone/binary.sha256",
	"$HOME/.safezone/binary.sha256",
}

// TamperEvent records a binary integrity violation.
type TamperEvent struct {
	Timestamp    string `json:"timestamp"`
	Binary       string `json:"binary"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	Hostname     string `json:"hostname"`
	Type         string `json:"type"`
}

// Checker verifies one binary. The zero value checks the running
// executable against ExpectedHash and DefaultChecksumPaths.
type Checker struct {
	Expected      string
	ChecksumPaths []string
	// TamperLog is the JSONL file tamper events are appended to. Empty
	// disables the file log.
	TamperLog string
	// Alerts receives a binary_tamper event on mismatch. May be nil.
	Alerts *alert.Dispatcher
	Logger *slog.Logger
	// Binary overrides the executable path, for tests.
	Binary string
}

// Verify returns nil when the binary matches, or when no expected hash is
// available (dev builds). On mismatch the tamper event is written and
// alerted before the error is returned.
func (c *Checker) Verify() error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	expected := c.Expected
	if expected == "" {
		expected = ExpectedHash
	}
	if expected == "" {
		paths := c.ChecksumPaths
		if paths == nil {
			paths = DefaultChecksumPaths
		}
		expected = loadChecksumFile(paths)
	}
	if expected == "" {
		logger.Debug("integrity check skipped: no build-time hash or checksum file")
		return nil
	}

	bin := c.Binary
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("integrity: cannot resolve executable path: %w", err)
		}
		bin = exe
	}

	actual, err := hashFile(bin)
	if err != nil {
		return fmt.Errorf("integrity: cannot hash binary: %w", err)
	}
	if strings.EqualFold(actual, expected) {
		logger.Debug("binary checksum verified", "hash", actual[:8]+"..."+actual[len(actual)-8:])
		return nil
	}

	event := TamperEvent{
		Timestamp:    time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Binary:       bin,
		ExpectedHash: expected,
		ActualHash:   actual,
		Type:         EventBinaryTamper,
	}
	event.Hostname, _ = os.Hostname()
	c.record(event, logger)

	return fmt.Errorf("integrity: binary checksum mismatch (expected %s, got %s)", expected, actual)
}

// HashSelf returns the SHA-256 hex digest of the running binary.
func HashSelf() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("integrity: cannot resolve executable path: %w", err)
	}
	return hashFile(exePath)
}

func (c *Checker) record(event TamperEvent, logger *slog.Logger) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}

	if c.TamperLog != "" {
		if err := appendLine(c.TamperLog, line); err != nil {
			logger.Error("tamper log write failed", "path", c.TamperLog, "error", err)
		}
	}

	logger.Error("binary tamper detected",
		"binary", event.Binary, "expected", event.ExpectedHash, "actual", event.ActualHash)

	if c.Alerts != nil {
		c.Alerts.Dispatch(alert.AlertEvent{
			Timestamp: event.Timestamp,
			Type:      EventBinaryTamper,
			Decision:  "deny",
			Target:    event.Binary,
			Host:      event.Hostname,
			Detail:    fmt.Sprintf("binary checksum mismatch: expected %s, got %s", event.ExpectedHash, event.ActualHash),
		})
		// The process is about to exit.
		c.Alerts.Wait()
	}
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// loadChecksumFile reads the expected hash from the first readable file
// that holds a SHA-256 hex digest.
func loadChecksumFile(paths []string) string {
	for _, p := range paths {
		data, err := os.ReadFile(os.ExpandEnv(p))
		if err != nil {
			continue
		}
		hash := strings.TrimSpace(string(data))
		if len(hash) == 64 && isHex(hash) {
			return hash
		}
	}
	return ""
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
