package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/safezone/internal/alert"
	"github.com/ppiankov/safezone/internal/integrity"
	"github.com/ppiankov/safezone/internal/policy"
)

var (
	policyPath string
	logLevel   string
	logFormat  string
)

// errDenied makes the process exit 1 without printing an error, for
// commands whose output already reports the denial.
var errDenied = errors.New("denied")

var rootCmd = &cobra.Command{
	Use:   "safezone",
	Short: "Authorization layer for agent file and remote-shell tools",
	Long: "Decides, per call, whether a filesystem target lies inside a configured safe zone\n" +
		"and whether a remote command line names a whitelisted command.\n" +
		"Collaborators perform I/O only on an allow verdict.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(logLevel, logFormat); err != nil {
			return err
		}
		if err := verifyBinary(); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "Path to policy YAML (default ~/.safezone/policy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text|json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errDenied) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func setupLogging(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// resolvedPolicyPath is the policy file actually read: the flag, or the
// default location.
func resolvedPolicyPath() string {
	if policyPath != "" {
		return policyPath
	}
	return policy.DefaultPath()
}

func configDir() string {
	return filepath.Dir(policy.DefaultPath())
}

func verifyBinary() error {
	c := &integrity.Checker{TamperLog: filepath.Join(configDir(), "tamper.jsonl")}
	// Alert routing is best-effort: an unreadable policy must not mask tampering.
	if cfg, err := policy.LoadConfig(policyPath); err == nil {
		c.Alerts = alert.NewDispatcher(cfg.Alerts, nil)
	}
	return c.Verify()
}
