package alert

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/safezone/internal/dispatch"
	"github.com/ppiankov/safezone/internal/model"
	"github.com/ppiankov/safezone/internal/policy"
)

func init() {
	retryBackoff = 10 * time.Millisecond
}

func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var called atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &called
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatchMatchesEvents(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)

	d := NewDispatcher([]policy.AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"deny"}},
	}, quietLogger())

	d.Dispatch(AlertEvent{Decision: "deny", Tool: "ssh_execute", Target: "rm -rf /"})
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestDispatchSkipsNonMatching(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)

	d := NewDispatcher([]policy.AlertConfig{
		{URL: srv.URL, Format: "generic", Events: []string{"deny"}},
	}, quietLogger())

	d.Dispatch(AlertEvent{Decision: "allow", Tool: "read_file", Target: "/tmp/safe.txt"})
	d.Wait()

	if called.Load() != 0 {
		t.Errorf("expected 0 calls for non-matching event, got %d", called.Load())
	}
}

func TestDispatchMatchesReason(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)

	d := NewDispatcher([]policy.AlertConfig{
		{URL: srv.URL, Events: []string{"traversal_attempt"}},
	}, quietLogger())

	d.Dispatch(AlertEvent{Decision: "deny", Reason: "outside_safe_zone"})
	d.Dispatch(AlertEvent{Decision: "deny", Reason: "traversal_attempt"})
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected only the traversal deny to alert, got %d calls", called.Load())
	}
}

func TestDispatchMultipleWebhooks(t *testing.T) {
	var called atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	d := NewDispatcher([]policy.AlertConfig{
		{URL: srv1.URL, Format: "generic", Events: []string{"deny"}},
		{URL: srv2.URL, Format: "slack", Events: []string{"deny", "reload_failed"}},
	}, quietLogger())

	d.Dispatch(AlertEvent{Decision: "deny", Tool: "write_file", Target: "/etc/hosts"})
	d.Wait()

	if called.Load() != 2 {
		t.Errorf("expected 2 calls (both webhooks match), got %d", called.Load())
	}
}

func TestOnVerdictBuildsEvent(t *testing.T) {
	got := make(chan AlertEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev AlertEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			got <- ev
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]policy.AlertConfig{{URL: srv.URL, Events: []string{"deny"}}}, quietLogger())
	var _ dispatch.Hook = d

	d.OnVerdict(dispatch.Event{
		Action: model.CommandAction{
			CommandRequest: model.CommandRequest{Command: "ls; rm -rf /", Host: "web1"},
			Tool:           "ssh_execute",
		},
		Verdict: model.Verdict{
			Kind:     model.KindCommand,
			Decision: model.Deny,
			Reason:   model.ReasonShellMetacharacterRejected,
		},
		HostLabel: "deploy@10.0.0.5:22",
	})
	d.Wait()

	select {
	case ev := <-got:
		if ev.Tool != "ssh_execute" || ev.Target != "ls; rm -rf /" || ev.Host != "deploy@10.0.0.5:22" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.ID == "" || ev.Timestamp == "" {
			t.Errorf("expected generated id and timestamp: %+v", ev)
		}
	default:
		t.Fatal("webhook did not receive the event")
	}
}

func TestOnReloadAlertsOnFailureOnly(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)
	d := NewDispatcher([]policy.AlertConfig{{URL: srv.URL, Events: []string{EventReloadFailed}}}, quietLogger())
	var _ dispatch.ReloadObserver = d

	d.OnReload("sha256:ok", nil)
	d.OnReload("", errors.New("zone missing"))
	d.Wait()

	if called.Load() != 1 {
		t.Errorf("expected 1 call, got %d", called.Load())
	}
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Send(policy.AlertConfig{URL: srv.URL, Format: "generic"}, AlertEvent{Decision: "deny"})
	if err != nil {
		t.Errorf("expected success after retries, got: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	srv, attempts := countingServer(t, http.StatusBadRequest)

	err := Send(policy.AlertConfig{URL: srv.URL, Format: "generic"}, AlertEvent{Decision: "deny"})
	if err == nil {
		t.Error("expected error on 400, got nil")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retry on 4xx), got %d", attempts.Load())
	}
}

func TestCustomHeadersSent(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := policy.AlertConfig{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer t"}}
	if err := Send(cfg, AlertEvent{Decision: "deny"}); err != nil {
		t.Fatal(err)
	}
	if auth.Load() != "Bearer t" {
		t.Errorf("expected Authorization header, got %v", auth.Load())
	}
}

func TestFormatGenericJSON(t *testing.T) {
	event := AlertEvent{
		ID:        "a-123",
		Timestamp: "2025-01-15T14:00:00.000Z",
		Tool:      "delete_file",
		Target:    "/etc/passwd",
		Decision:  "deny",
		Reason:    "outside_safe_zone",
	}

	data, err := FormatPayload("generic", event)
	if err != nil {
		t.Fatal(err)
	}

	var parsed AlertEvent
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("generic format is not valid JSON: %v", err)
	}
	if parsed != event {
		t.Errorf("generic payload changed the event: %+v", parsed)
	}
}

func TestFormatSlackBlockKit(t *testing.T) {
	event := AlertEvent{
		Tool:     "ssh_execute",
		Target:   "rm -rf /",
		Host:     "deploy@web1:22",
		Decision: "deny",
		Reason:   "command_not_whitelisted",
	}

	data, err := FormatPayload("slack", event)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("slack format is not valid JSON: %v", err)
	}

	blocks, ok := parsed["blocks"].([]any)
	if !ok || len(blocks) < 2 {
		t.Fatalf("expected at least 2 blocks, got %v", parsed["blocks"])
	}
	header, _ := blocks[0].(map[string]any)
	if header["type"] != "header" {
		t.Errorf("expected header block, got %s", header["type"])
	}
	section, _ := blocks[1].(map[string]any)
	fields, ok := section["fields"].([]any)
	if !ok || len(fields) != 5 {
		t.Errorf("expected 5 fields including host, got %v", fields)
	}
}

func TestFormatPagerDutySeverity(t *testing.T) {
	tests := []struct {
		event AlertEvent
		want  string
	}{
		{AlertEvent{Decision: "deny", Reason: "traversal_attempt"}, "error"},
		{AlertEvent{Decision: "deny", Reason: "outside_safe_zone"}, "warning"},
		{AlertEvent{Type: EventReloadFailed, Detail: "boom"}, "critical"},
		{AlertEvent{Decision: "allow"}, "info"},
	}
	for _, tt := range tests {
		data, err := FormatPayload("pagerduty", tt.event)
		if err != nil {
			t.Fatal(err)
		}
		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatalf("pagerduty format is not valid JSON: %v", err)
		}
		if parsed["event_action"] != "trigger" {
			t.Errorf("expected event_action trigger, got %v", parsed["event_action"])
		}
		payload, ok := parsed["payload"].(map[string]any)
		if !ok {
			t.Fatal("expected payload object")
		}
		if payload["severity"] != tt.want {
			t.Errorf("%+v: expected severity %s, got %v", tt.event, tt.want, payload["severity"])
		}
		if payload["source"] != "safezone" {
			t.Errorf("expected source safezone, got %v", payload["source"])
		}
	}
}

func TestNewDispatcherNilOnEmpty(t *testing.T) {
	if d := NewDispatcher(nil, nil); d != nil {
		t.Error("expected nil dispatcher for empty configs")
	}
	if d := NewDispatcher([]policy.AlertConfig{}, nil); d != nil {
		t.Error("expected nil dispatcher for zero-length configs")
	}
}

func TestOnVerdictRedactsCommandSecrets(t *testing.T) {
	got := make(chan AlertEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev AlertEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			got <- ev
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]policy.AlertConfig{{URL: srv.URL, Events: []string{"deny"}}}, quietLogger())
	d.OnVerdict(dispatch.Event{
		Action: model.CommandAction{
			CommandRequest: model.CommandRequest{Command: "curl -H 'Authorization: Bearer abc123' https://x"},
			Tool:           "ssh_execute",
		},
		Verdict: model.Verdict{Kind: model.KindCommand, Decision: model.Deny, Reason: model.ReasonCommandNotWhitelisted},
	})
	d.Wait()

	select {
	case ev := <-got:
		if ev.Target != "curl -H 'Authorization: Bearer ***' https://x" {
			t.Errorf("secret not redacted: %q", ev.Target)
		}
	default:
		t.Fatal("webhook did not receive the event")
	}
}

func TestNilDescriptorDeniedWithoutPanic(t *testing.T) {
	srv, called := countingServer(t, http.StatusOK)
	d := NewDispatcher([]policy.AlertConfig{{URL: srv.URL, Events: []string{string(model.ReasonUnknownAction)}}}, quietLogger())

	store, err := policy.New(policy.Options{})
	if err != nil {
		t.Fatal(err)
	}
	disp, err := dispatch.New(store, dispatch.WithHook(d))
	if err != nil {
		t.Fatal(err)
	}

	for _, action := range []model.ActionDescriptor{(*model.PathAction)(nil), (*model.CommandAction)(nil)} {
		v := disp.Dispatch(action)
		if v.Decision != model.Deny || v.Reason != model.ReasonUnknownAction {
			t.Errorf("%T: expected deny(unknown_action), got %s(%s)", action, v.Decision, v.Reason)
		}
	}
	d.Wait()

	if called.Load() != 2 {
		t.Errorf("expected 2 alerts, got %d", called.Load())
	}
}

func TestSetConfigsReplacesDestinations(t *testing.T) {
	first, firstCalls := countingServer(t, http.StatusOK)
	second, secondCalls := countingServer(t, http.StatusOK)

	d := New(quietLogger())
	d.Dispatch(AlertEvent{Decision: "deny"})
	d.Wait()

	d.SetConfigs([]policy.AlertConfig{{URL: first.URL, Events: []string{"deny"}}})
	d.Dispatch(AlertEvent{Decision: "deny"})
	d.Wait()

	d.SetConfigs([]policy.AlertConfig{{URL: second.URL, Events: []string{"deny"}}})
	d.Dispatch(AlertEvent{Decision: "deny"})
	d.Wait()

	if firstCalls.Load() != 1 || secondCalls.Load() != 1 {
		t.Errorf("expected one call each, got first=%d second=%d", firstCalls.Load(), secondCalls.Load())
	}
}
