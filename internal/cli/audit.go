package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/safezone/internal/audit"
)

var (
	tailLines    int
	tailDecision string
	tailReason   string
	tailTool     string
	tailSince    string
	tailFormat   string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show (0 for all)")
	auditTailCmd.Flags().StringVar(&tailDecision, "decision", "", "Only show this decision (allow|deny)")
	auditTailCmd.Flags().StringVar(&tailReason, "reason", "", "Only show this denial reason")
	auditTailCmd.Flags().StringVar(&tailTool, "tool", "", "Only show this requesting tool")
	auditTailCmd.Flags().StringVar(&tailSince, "since", "", "Only show entries newer than this duration (e.g. 1h, 30m)")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "table", "Output format (table|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit log entries",
	Long:  "Reads the JSONL audit log, applies filters, and prints the last N matches with a summary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return errDenied
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{
		Decision: tailDecision,
		Reason:   tailReason,
		Tool:     tailTool,
		Limit:    tailLines,
	}
	if tailSince != "" {
		d, err := time.ParseDuration(tailSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}

	report, err := audit.Read(args[0], filter)
	if err != nil {
		return err
	}

	if tailFormat == "json" {
		s, err := audit.FormatJSON(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatTable(report))
	return nil
}
