package cli

import (
	"fmt"
	"log/slog"

	"github.com/ppiankov/safezone/internal/alert"
	"github.com/ppiankov/safezone/internal/audit"
	"github.com/ppiankov/safezone/internal/dispatch"
	"github.com/ppiankov/safezone/internal/metrics"
	"github.com/ppiankov/safezone/internal/policy"
)

type runtimeOptions struct {
	AuditLog    string
	AuditAllows bool
	Metrics     bool
}

// runtime is a dispatcher plus the hooks attached to it.
type runtime struct {
	dispatcher *dispatch.Dispatcher
	config     *policy.Config
	auditLog   *audit.Log
	alerts     *alert.Dispatcher
	metrics    *metrics.Metrics
}

func newRuntime(opts runtimeOptions) (*runtime, error) {
	store, cfg, err := policy.Load(resolvedPolicyPath())
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	rt := &runtime{config: cfg}
	var dopts []dispatch.Option

	if opts.AuditLog != "" {
		l, err := audit.Open(opts.AuditLog)
		if err != nil {
			return nil, err
		}
		rt.auditLog = l
		rec := audit.NewRecorder(l, slog.Default())
		rec.IncludeAllows = opts.AuditAllows
		dopts = append(dopts, dispatch.WithHook(rec))
	}

	rt.alerts = alert.New(slog.Default())
	rt.alerts.SetConfigs(cfg.Alerts)
	dopts = append(dopts,
		dispatch.WithHook(rt.alerts),
		dispatch.WithReloadObserver(rt.alerts),
		dispatch.WithReloadObserver(dispatch.ReloadFunc(rt.refreshAlerts)),
	)

	if opts.Metrics {
		rt.metrics = metrics.New()
		dopts = append(dopts, dispatch.WithHook(rt.metrics), dispatch.WithReloadObserver(rt.metrics))
	}

	d, err := dispatch.New(store, dopts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.dispatcher = d
	return rt, nil
}

// refreshAlerts re-reads the alerts section after a successful reload. A
// file that changed again in between is skipped; its own reload follows.
func (rt *runtime) refreshAlerts(hash string, err error) {
	if err != nil {
		return
	}
	cfg, fileHash, err := policy.LoadConfigWithHash(resolvedPolicyPath())
	if err != nil || fileHash != hash {
		return
	}
	rt.alerts.SetConfigs(cfg.Alerts)
	slog.Debug("alert webhooks refreshed", "count", len(cfg.Alerts), "policy_hash", hash)
}

// Close flushes pending alerts and closes the audit log.
func (rt *runtime) Close() error {
	if rt.alerts != nil {
		rt.alerts.Wait()
	}
	if rt.auditLog != nil {
		return rt.auditLog.Close()
	}
	return nil
}
