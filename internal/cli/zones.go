package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/safezone/internal/policy"
)

var listFormat string

func init() {
	rootCmd.AddCommand(zonesCmd)
	rootCmd.AddCommand(hostsCmd)
	zonesCmd.Flags().StringVarP(&listFormat, "format", "f", "text", "Output format (text|json)")
	hostsCmd.Flags().StringVarP(&listFormat, "format", "f", "text", "Output format (text|json)")
}

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "List canonical safe zones",
	Long: "Prints every safe zone after canonicalization, next to the declared path made absolute.\n" +
		"Declared zones that do not exist on this host are not listed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := policy.Load(resolvedPolicyPath())
		if err != nil {
			return err
		}
		zones := store.Zones()
		if listFormat == "json" {
			return writeJSON(cmd, zones)
		}
		if len(zones) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No safe zones configured: all writes are denied.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ZONE\tDECLARED")
		for _, z := range zones {
			fmt.Fprintf(tw, "%s\t%s\n", z.Root, z.Lexical)
		}
		return tw.Flush()
	},
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List configured remote hosts and the command whitelist",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := policy.Load(resolvedPolicyPath())
		if err != nil {
			return err
		}
		type hostRow struct {
			Name  string `json:"name"`
			Label string `json:"label"`
		}
		var rows []hostRow
		for _, h := range store.Hosts() {
			rows = append(rows, hostRow{Name: h.Name, Label: h.Label()})
		}
		if listFormat == "json" {
			return writeJSON(cmd, map[string]any{
				"hosts":            rows,
				"allowed_commands": store.Commands(),
			})
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "HOST\tTARGET")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.Label)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nAllowed commands (%d): %v\n", len(store.Commands()), store.Commands())
		return nil
	},
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
