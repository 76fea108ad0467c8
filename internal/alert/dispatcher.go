package alert

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/safezone/internal/dispatch"
	"github.com/ppiankov/safezone/internal/model"
	"github.com/ppiankov/safezone/internal/policy"
	"github.com/ppiankov/safezone/internal/redact"
)

// Dispatcher fans out alert events to matching webhook configurations.
// It is both a dispatch.Hook and a dispatch.ReloadObserver.
type Dispatcher struct {
	mu      sync.RWMutex
	configs []policy.AlertConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []policy.AlertConfig, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// New creates a Dispatcher with no webhooks, for callers that install
// them later with SetConfigs.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// SetConfigs replaces the webhook destinations. Sends already in flight
// keep their old destination.
func (d *Dispatcher) SetConfigs(configs []policy.AlertConfig) {
	d.mu.Lock()
	d.configs = append([]policy.AlertConfig(nil), configs...)
	d.mu.Unlock()
}

// Dispatch sends the event to all webhooks whose Events list matches its
// decision, reason or type. Sends run on their own goroutines.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	d.mu.RLock()
	configs := d.configs
	d.mu.RUnlock()

	for _, cfg := range configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg policy.AlertConfig) {
			defer d.wg.Done()
			if err := Send(cfg, event); err != nil {
				d.logger.Warn("alert delivery failed", "url", cfg.URL, "event", event.ID, "error", err)
			}
		}(cfg)
	}
}

// Wait blocks until all in-flight sends have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// OnVerdict implements dispatch.Hook.
func (d *Dispatcher) OnVerdict(e dispatch.Event) {
	ev := AlertEvent{
		Kind:       string(e.Verdict.Kind),
		Decision:   string(e.Verdict.Decision),
		Reason:     string(e.Verdict.Reason),
		Detail:     e.Verdict.Detail,
		PolicyHash: e.Verdict.PolicyHash,
		Host:       e.HostLabel,
	}
	if !e.At.IsZero() {
		ev.Timestamp = e.At.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	switch a := e.Action.(type) {
	case model.PathAction:
		ev.Tool, ev.Target = a.Tool, a.Path
	case *model.PathAction:
		if a != nil {
			ev.Tool, ev.Target = a.Tool, a.Path
		}
	case model.CommandAction:
		ev.Tool, ev.Target = a.Tool, redact.Secrets(a.Command)
	case *model.CommandAction:
		if a != nil {
			ev.Tool, ev.Target = a.Tool, redact.Secrets(a.Command)
		}
	}
	d.Dispatch(ev)
}

// OnReload implements dispatch.ReloadObserver. Only failures alert.
func (d *Dispatcher) OnReload(hash string, err error) {
	if err == nil {
		return
	}
	d.Dispatch(AlertEvent{Type: EventReloadFailed, Detail: err.Error()})
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		switch {
		case event.Decision != "" && e == event.Decision:
			return true
		case event.Reason != "" && e == event.Reason:
			return true
		case event.Type != "" && e == event.Type:
			return true
		}
	}
	return false
}
