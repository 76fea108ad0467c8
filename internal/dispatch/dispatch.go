// Package dispatch is the single entry point collaborators call before any
// side-effecting action. It routes an ActionDescriptor to the path or
// command resolver over the current policy snapshot.
package dispatch

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ppiankov/safezone/internal/cmdguard"
	"github.com/ppiankov/safezone/internal/model"
	"github.com/ppiankov/safezone/internal/pathguard"
	"github.com/ppiankov/safezone/internal/policy"
)

// ErrNilStore is returned when a nil snapshot is offered to New or Reload.
var ErrNilStore = errors.New("policy store is nil")

// Event describes one evaluated action. Hooks receive it after the verdict
// has been computed and before it is returned to the caller.
type Event struct {
	Action    model.ActionDescriptor
	Verdict   model.Verdict
	HostLabel string
	Duration  time.Duration
	At        time.Time
}

// Hook observes verdicts. Implementations must not block for long: they run
// on the caller's goroutine.
type Hook interface {
	OnVerdict(Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(Event)

func (f HookFunc) OnVerdict(e Event) { f(e) }

// ReloadObserver is told about every reload attempt. err is nil on success,
// in which case hash is the new snapshot's policy hash.
type ReloadObserver interface {
	OnReload(hash string, err error)
}

// ReloadFunc adapts a function to ReloadObserver.
type ReloadFunc func(hash string, err error)

func (f ReloadFunc) OnReload(hash string, err error) { f(hash, err) }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHook registers a verdict hook. Hooks run in registration order.
func WithHook(h Hook) Option {
	return func(d *Dispatcher) {
		if h != nil {
			d.hooks = append(d.hooks, h)
		}
	}
}

// WithReloadObserver registers an observer for reload attempts.
func WithReloadObserver(o ReloadObserver) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// Dispatcher evaluates actions against an atomically swappable snapshot.
// Dispatch and Reload are safe for concurrent use.
type Dispatcher struct {
	store     atomic.Pointer[policy.Store]
	hooks     []Hook
	observers []ReloadObserver
	now       func() time.Time
}

// New creates a Dispatcher serving store.
func New(store *policy.Store, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	d := &Dispatcher{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	d.store.Store(store)
	return d, nil
}

// Snapshot returns the store currently in effect.
func (d *Dispatcher) Snapshot() *policy.Store {
	return d.store.Load()
}

// Dispatch evaluates action against the current snapshot. The snapshot is
// read once, so a concurrent Reload never mixes two policies in one verdict.
func (d *Dispatcher) Dispatch(action model.ActionDescriptor) model.Verdict {
	store := d.store.Load()
	start := d.now()

	var v model.Verdict
	host := ""
	switch a := action.(type) {
	case model.PathAction:
		v = fromPath(pathguard.Resolve(store, a.PathRequest))
	case *model.PathAction:
		if a == nil {
			v = unknown()
			break
		}
		v = fromPath(pathguard.Resolve(store, a.PathRequest))
	case model.CommandAction:
		v = fromCommand(cmdguard.Resolve(store, a.CommandRequest))
		host = hostLabel(store, a.Host)
	case *model.CommandAction:
		if a == nil {
			v = unknown()
			break
		}
		v = fromCommand(cmdguard.Resolve(store, a.CommandRequest))
		host = hostLabel(store, a.Host)
	default:
		v = unknown()
	}
	v.PolicyHash = store.Hash()

	if len(d.hooks) > 0 {
		e := Event{Action: action, Verdict: v, HostLabel: host, Duration: d.now().Sub(start), At: start}
		for _, h := range d.hooks {
			h.OnVerdict(e)
		}
	}
	return v
}

// Reload swaps in store. A nil store is rejected and the previous snapshot
// stays active.
func (d *Dispatcher) Reload(store *policy.Store) error {
	if store == nil {
		d.notify("", ErrNilStore)
		return ErrNilStore
	}
	d.store.Store(store)
	d.notify(store.Hash(), nil)
	return nil
}

// ReloadFromFile loads, canonicalizes and swaps in the policy at path. On
// any error the previous snapshot stays active.
func (d *Dispatcher) ReloadFromFile(path string) error {
	store, _, err := policy.Load(path)
	if err != nil {
		err = fmt.Errorf("reload %s: %w", path, err)
		d.notify("", err)
		return err
	}
	return d.Reload(store)
}

func (d *Dispatcher) notify(hash string, err error) {
	for _, o := range d.observers {
		o.OnReload(hash, err)
	}
}

func hostLabel(store *policy.Store, name string) string {
	if name == "" {
		return ""
	}
	if h, ok := store.Host(name); ok {
		return h.Label()
	}
	return name
}

func fromPath(pv model.PathVerdict) model.Verdict {
	return model.Verdict{
		Kind:     model.KindPath,
		Decision: pv.Decision,
		Reason:   pv.Reason,
		Path:     pv.Path,
		Source:   pv.Source,
		Detail:   pv.Detail,
	}
}

func fromCommand(cv model.CommandVerdict) model.Verdict {
	return model.Verdict{
		Kind:        model.KindCommand,
		Decision:    cv.Decision,
		Reason:      cv.Reason,
		BaseCommand: cv.BaseCommand,
	}
}

func unknown() model.Verdict {
	return model.Verdict{Decision: model.Deny, Reason: model.ReasonUnknownAction}
}
