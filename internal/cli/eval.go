package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/safezone/internal/model"
)

var (
	evalTier     string
	evalSource   string
	evalHost     string
	evalFormat   string
	evalAuditLog string
)

func init() {
	rootCmd.AddCommand(evalCmd)
	evalCmd.AddCommand(evalPathCmd)
	evalCmd.AddCommand(evalCommandCmd)

	evalCmd.PersistentFlags().StringVarP(&evalFormat, "format", "f", "text", "Output format (text|json)")
	evalCmd.PersistentFlags().StringVar(&evalAuditLog, "audit-log", "", "Append the verdict to this audit log")
	evalPathCmd.Flags().StringVar(&evalTier, "tier", "write", "Operation tier (read|write|copy_in|copy_out|delete|move)")
	evalPathCmd.Flags().StringVar(&evalSource, "source", "", "Source path for copy_in and move")
	evalCommandCmd.Flags().StringVar(&evalHost, "host", "", "Remote host name")
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a single action against the policy",
	Long:  "Prints the verdict for one path or command request. Exit code 1 on deny.",
}

var evalPathCmd = &cobra.Command{
	Use:   "path <path>",
	Short: "Evaluate a filesystem request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, err := model.ParseTier(evalTier)
		if err != nil {
			return err
		}
		return evaluate(cmd.OutOrStdout(), model.PathAction{
			PathRequest: model.PathRequest{Path: args[0], Source: evalSource, Tier: tier},
			Tool:        "cli",
		})
	},
}

var evalCommandCmd = &cobra.Command{
	Use:   "command <line>",
	Short: "Evaluate a remote command line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return evaluate(cmd.OutOrStdout(), model.CommandAction{
			CommandRequest: model.CommandRequest{Command: args[0], Host: evalHost},
			Tool:           "cli",
		})
	},
}

func evaluate(w io.Writer, action model.ActionDescriptor) error {
	rt, err := newRuntime(runtimeOptions{AuditLog: evalAuditLog, AuditAllows: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	v := rt.dispatcher.Dispatch(action)
	if err := writeVerdict(w, v, evalFormat); err != nil {
		return err
	}
	if !v.Allowed() {
		return errDenied
	}
	return nil
}

func writeVerdict(w io.Writer, v model.Verdict, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if v.Allowed() {
		switch v.Kind {
		case model.KindPath:
			if v.Source != "" {
				fmt.Fprintf(w, "ALLOW %s -> %s\n", v.Source, v.Path)
			} else {
				fmt.Fprintf(w, "ALLOW %s\n", v.Path)
			}
		default:
			fmt.Fprintf(w, "ALLOW %s\n", v.BaseCommand)
		}
		return nil
	}
	fmt.Fprintf(w, "DENY  %s: %s\n", v.Reason, v.Reason.Description())
	if v.Detail != "" {
		fmt.Fprintf(w, "      %s\n", v.Detail)
	}
	return nil
}
