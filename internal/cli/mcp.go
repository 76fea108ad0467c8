package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/safezone/internal/dispatch"
	szmcp "github.com/ppiankov/safezone/internal/mcp"
)

var (
	mcpAuditLog    string
	mcpAuditAllows bool
	mcpMetricsAddr string
	mcpWatch       bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Append verdicts to this hash-chained JSONL log")
	mcpCmd.Flags().BoolVar(&mcpAuditAllows, "audit-allows", false, "Record allow verdicts as well as denies")
	mcpCmd.Flags().StringVar(&mcpMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	mcpCmd.Flags().BoolVar(&mcpWatch, "watch", true, "Reload the policy file when it changes")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs safezone as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: safezone_check_path, safezone_check_command,\n" +
		"safezone_list_zones, safezone_list_hosts.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(runtimeOptions{
		AuditLog:    mcpAuditLog,
		AuditAllows: mcpAuditAllows,
		Metrics:     mcpMetricsAddr != "",
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if mcpWatch {
		r, err := dispatch.NewReloader(rt.dispatcher, resolvedPolicyPath(), slog.Default())
		if err != nil {
			slog.Warn("policy watch disabled", "error", err)
		} else {
			go func() {
				if err := r.Run(ctx); err != nil {
					slog.Error("policy watcher stopped", "error", err)
				}
			}()
		}
	}

	if mcpMetricsAddr != "" {
		srv := &http.Server{
			Addr:              mcpMetricsAddr,
			Handler:           metricsMux(rt),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", mcpMetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Fprintln(os.Stderr, "safezone MCP server running on stdio")
	slog.Info("mcp server starting",
		"policy", resolvedPolicyPath(),
		"policy_hash", rt.dispatcher.Snapshot().Hash(),
		"zones", len(rt.dispatcher.Snapshot().Zones()))

	return szmcp.New(rt.dispatcher, version).Run(ctx)
}

func metricsMux(rt *runtime) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, rt.dispatcher.Snapshot().Hash())
	})
	return mux
}
