package audit

import (
	"log/slog"
	"time"

	"github.com/ppiankov/safezone/internal/dispatch"
	"github.com/ppiankov/safezone/internal/model"
	"github.com/ppiankov/safezone/internal/redact"
)

// Recorder is a dispatch.Hook that appends verdicts to a Log. Denies are
// always recorded; allows only when IncludeAllows is set.
type Recorder struct {
	log           *Log
	IncludeAllows bool
	logger        *slog.Logger
}

// NewRecorder wraps l. Write failures are logged, never returned to the
// dispatcher.
func NewRecorder(l *Log, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{log: l, logger: logger}
}

// OnVerdict implements dispatch.Hook.
func (r *Recorder) OnVerdict(e dispatch.Event) {
	if e.Verdict.Allowed() && !r.IncludeAllows {
		return
	}
	entry := EntryFromEvent(e)
	if err := r.log.Record(entry); err != nil {
		r.logger.Error("audit record failed",
			"tool", entry.Action.Tool, "reason", entry.Reason, "error", err)
	}
}

// EntryFromEvent flattens a dispatch event into an unchained entry.
func EntryFromEvent(e dispatch.Event) AuditEntry {
	entry := AuditEntry{
		Decision:   string(e.Verdict.Decision),
		Reason:     string(e.Verdict.Reason),
		PolicyHash: e.Verdict.PolicyHash,
		Action:     AuditAction{Kind: string(e.Verdict.Kind)},
	}
	if !e.At.IsZero() {
		entry.Timestamp = e.At.UTC().Format(TimestampFormat)
	} else {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}

	switch a := e.Action.(type) {
	case model.PathAction:
		fillPath(&entry, a)
		entry.Resolved = e.Verdict.Path
	case *model.PathAction:
		if a != nil {
			fillPath(&entry, *a)
			entry.Resolved = e.Verdict.Path
		}
	case model.CommandAction:
		fillCommand(&entry, a, e.HostLabel)
		entry.Resolved = e.Verdict.BaseCommand
	case *model.CommandAction:
		if a != nil {
			fillCommand(&entry, *a, e.HostLabel)
			entry.Resolved = e.Verdict.BaseCommand
		}
	}
	return entry
}

func fillPath(entry *AuditEntry, a model.PathAction) {
	entry.Action.Kind = string(model.KindPath)
	entry.Action.Tool = a.Tool
	entry.Action.Target = a.Path
	entry.Action.Source = a.Source
	entry.Action.Tier = a.Tier.String()
}

func fillCommand(entry *AuditEntry, a model.CommandAction, host string) {
	entry.Action.Kind = string(model.KindCommand)
	entry.Action.Tool = a.Tool
	entry.Action.Target = redact.Secrets(a.Command)
	entry.Action.Host = host
}
