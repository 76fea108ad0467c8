package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ppiankov/safezone/internal/model"
	"github.com/ppiankov/safezone/internal/policy"
)

func realTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func newStore(t *testing.T, zone string, commands ...string) *policy.Store {
	t.Helper()
	opts := policy.Options{
		Commands: commands,
		Hosts: map[string]policy.HostConfig{
			"web1": {Host: "10.0.0.5", Port: 2222, User: "deploy", KeyFile: "/keys/web1"},
		},
		Hash: "sha256:" + zone,
	}
	if zone != "" {
		opts.Zones = []policy.ZoneSpec{{Path: zone, Declared: true}}
	}
	s, err := policy.New(opts)
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}
	return s
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnVerdict(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type reloads struct {
	mu     sync.Mutex
	hashes []string
	errs   []error
}

func (r *reloads) OnReload(hash string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes = append(r.hashes, hash)
	r.errs = append(r.errs, err)
}

func TestNewRejectsNilStore(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNilStore) {
		t.Fatalf("expected ErrNilStore, got %v", err)
	}
}

func TestDispatchRoutesPath(t *testing.T) {
	zone := realTempDir(t)
	d, err := New(newStore(t, zone, "git"))
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(zone, "out.txt")

	v := d.Dispatch(model.PathAction{
		PathRequest: model.PathRequest{Path: target, Tier: model.WriteInZone},
		Tool:        "write_file",
	})
	if v.Kind != model.KindPath || !v.Allowed() || v.Path != target {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if v.PolicyHash != "sha256:"+zone {
		t.Errorf("expected policy hash to be stamped, got %q", v.PolicyHash)
	}
}

func TestDispatchRoutesCommand(t *testing.T) {
	d, err := New(newStore(t, "", "git"))
	if err != nil {
		t.Fatal(err)
	}

	v := d.Dispatch(&model.CommandAction{
		CommandRequest: model.CommandRequest{Command: "git status", Host: "web1"},
		Tool:           "ssh_execute",
	})
	if v.Kind != model.KindCommand || !v.Allowed() || v.BaseCommand != "git" {
		t.Fatalf("unexpected verdict: %+v", v)
	}

	v = d.Dispatch(model.CommandAction{CommandRequest: model.CommandRequest{Command: "git status; rm -rf /"}})
	if v.Allowed() || v.Reason != model.ReasonShellMetacharacterRejected {
		t.Fatalf("expected metacharacter rejection, got %+v", v)
	}
}

func TestDispatchNilDescriptorFailsClosed(t *testing.T) {
	d, err := New(newStore(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	var pa *model.PathAction
	for _, a := range []model.ActionDescriptor{nil, pa} {
		v := d.Dispatch(a)
		if v.Allowed() || v.Reason != model.ReasonUnknownAction {
			t.Errorf("expected deny(unknown_action) for %T, got %+v", a, v)
		}
	}
}

func TestHooksSeeEveryVerdict(t *testing.T) {
	rec := &recorder{}
	d, err := New(newStore(t, "", "ls"), WithHook(rec), WithHook(nil))
	if err != nil {
		t.Fatal(err)
	}

	d.Dispatch(model.CommandAction{CommandRequest: model.CommandRequest{Command: "ls", Host: "web1"}, Tool: "ssh_execute"})
	d.Dispatch(model.CommandAction{CommandRequest: model.CommandRequest{Command: "rm -rf /", Host: "db9"}, Tool: "ssh_execute"})

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].HostLabel != "deploy@10.0.0.5:2222" {
		t.Errorf("expected configured host label, got %q", events[0].HostLabel)
	}
	if events[1].HostLabel != "db9" {
		t.Errorf("expected unknown host to be labelled by name, got %q", events[1].HostLabel)
	}
	deny := events[1]
	if deny.Verdict.Allowed() || deny.Verdict.Reason != model.ReasonCommandNotWhitelisted {
		t.Errorf("unexpected deny verdict: %+v", deny.Verdict)
	}
	if deny.Action.RequestingTool() != "ssh_execute" || deny.Action.Target() != "rm -rf /" {
		t.Errorf("hook lost action identity: %+v", deny.Action)
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	zoneA := realTempDir(t)
	zoneB := realTempDir(t)
	obs := &reloads{}
	d, err := New(newStore(t, zoneA), WithReloadObserver(obs))
	if err != nil {
		t.Fatal(err)
	}
	inB := model.PathAction{PathRequest: model.PathRequest{Path: filepath.Join(zoneB, "f"), Tier: model.WriteInZone}}

	if d.Dispatch(inB).Allowed() {
		t.Fatal("zone B must not be writable before reload")
	}
	if err := d.Reload(newStore(t, zoneB)); err != nil {
		t.Fatal(err)
	}
	if !d.Dispatch(inB).Allowed() {
		t.Fatal("zone B must be writable after reload")
	}
	if len(obs.hashes) != 1 || obs.errs[0] != nil || obs.hashes[0] != "sha256:"+zoneB {
		t.Errorf("unexpected reload notifications: %v %v", obs.hashes, obs.errs)
	}
}

func TestFailedReloadKeepsPreviousSnapshot(t *testing.T) {
	zone := realTempDir(t)
	obs := &reloads{}
	d, err := New(newStore(t, zone), WithReloadObserver(obs))
	if err != nil {
		t.Fatal(err)
	}
	before := d.Snapshot()

	if err := d.Reload(nil); !errors.Is(err, ErrNilStore) {
		t.Fatalf("expected ErrNilStore, got %v", err)
	}

	bad := filepath.Join(t.TempDir(), "policy.yaml")
	yaml := "safe_zones:\n  - " + filepath.Join(zone, "does-not-exist") + "\n"
	if err := os.WriteFile(bad, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	err = d.ReloadFromFile(bad)
	var cfgErr *policy.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	if d.Snapshot() != before {
		t.Fatal("failed reload replaced the snapshot")
	}
	v := d.Dispatch(model.PathAction{PathRequest: model.PathRequest{Path: filepath.Join(zone, "x"), Tier: model.Delete}})
	if !v.Allowed() {
		t.Fatalf("previous policy should still apply, got %+v", v)
	}
	if len(obs.errs) != 2 || obs.errs[0] == nil || obs.errs[1] == nil {
		t.Errorf("expected two failed reload notifications, got %v", obs.errs)
	}
}

func TestReloadFromFile(t *testing.T) {
	zone := realTempDir(t)
	d, err := New(newStore(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "policy.yaml")
	yaml := "safe_zones:\n  - " + zone + "\nssh:\n  allowed_commands: [uptime]\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	if err := d.ReloadFromFile(path); err != nil {
		t.Fatalf("ReloadFromFile: %v", err)
	}
	if !d.Snapshot().AllowsCommand("uptime") {
		t.Error("expected new whitelist to be active")
	}
	if d.Snapshot().Hash() == "" {
		t.Error("expected content hash on reloaded snapshot")
	}
}

func TestConcurrentDispatchAndReload(t *testing.T) {
	zoneA := realTempDir(t)
	zoneB := realTempDir(t)
	storeA := newStore(t, zoneA, "ls")
	storeB := newStore(t, zoneB, "ls")
	d, err := New(storeA)
	if err != nil {
		t.Fatal(err)
	}

	inA := model.PathAction{PathRequest: model.PathRequest{Path: filepath.Join(zoneA, "f"), Tier: model.WriteInZone}}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_ = d.Reload(storeB)
			} else {
				_ = d.Reload(storeA)
			}
		}
	}()

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v := d.Dispatch(inA)
				// Either snapshot is acceptable; a mix is not.
				switch v.PolicyHash {
				case storeA.Hash():
					if !v.Allowed() {
						t.Errorf("snapshot A denied its own zone: %+v", v)
					}
				case storeB.Hash():
					if v.Allowed() {
						t.Errorf("snapshot B allowed zone A: %+v", v)
					}
				default:
					t.Errorf("unexpected policy hash %q", v.PolicyHash)
				}
			}
		}()
	}

	// Let the dispatch workers finish, then stop the reloader.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			d.Dispatch(inA)
		}
		close(done)
	}()
	<-done
	close(stop)
	wg.Wait()
}

func TestDispatchIsIdempotent(t *testing.T) {
	zone := realTempDir(t)
	d, err := New(newStore(t, zone, "git"))
	if err != nil {
		t.Fatal(err)
	}
	a := model.PathAction{PathRequest: model.PathRequest{Path: zone + "/../escape", Tier: model.WriteInZone}}
	first := d.Dispatch(a)
	for i := 0; i < 5; i++ {
		if got := d.Dispatch(a); got != first {
			t.Fatalf("verdict changed: %+v vs %+v", first, got)
		}
	}
}
