package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/safezone/internal/policy"
	"github.com/ppiankov/safezone/internal/policydiff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two policy files",
	Long: "Canonicalizes both policies and shows added and removed safe zones,\n" +
		"whitelisted commands and hosts. Changes that widen permissions are marked (looser).",
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	// A missing file would silently load the defaults.
	for _, p := range args {
		if _, err := os.Stat(p); err != nil {
			return err
		}
	}
	oldStore, _, err := policy.Load(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	newStore, _, err := policy.Load(args[1])
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}

	r := policydiff.Diff(oldStore, newStore)
	r.OldPath, r.NewPath = args[0], args[1]

	if diffFormat == "json" {
		out, err := policydiff.FormatJSON(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), policydiff.FormatText(r))
	return nil
}
