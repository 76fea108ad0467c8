// Package pathguard decides whether a filesystem request may proceed,
// based on containment of its canonical path in a safe zone.
package pathguard

import (
	"errors"

	"github.com/ppiankov/safezone/internal/canon"
	"github.com/ppiankov/safezone/internal/model"
	"github.com/ppiankov/safezone/internal/policy"
)

// Resolve evaluates req against the zones in store.
//
// Evaluation order (must not be changed):
//  1. CopyOutbound: always deny
//  2. Early traversal filter for zone-checked tiers
//  3. Canonicalize the target (and source for copy/move)
//  4. Tier predicate
func Resolve(store *policy.Store, req model.PathRequest) model.PathVerdict {
	if req.Tier == model.CopyOutbound {
		return deny(model.ReasonOutsideSafeZone, "copying out of a safe zone is never permitted")
	}
	if !knownTier(req.Tier) {
		return deny(model.ReasonOutsideSafeZone, "unknown operation tier "+req.Tier.String())
	}

	zoned := req.Tier != model.ReadOnly

	if zoned && escapes(store, req.Path) {
		return deny(model.ReasonTraversalAttempt, "")
	}
	target, reason, detail := canonical(req.Path)
	if reason != model.ReasonNone {
		return deny(reason, detail)
	}

	switch req.Tier {
	case model.ReadOnly:
		return allow(target, "")

	case model.WriteInZone, model.Delete:
		if _, ok := store.ContainingZone(target); !ok {
			return deny(model.ReasonOutsideSafeZone, "")
		}
		return allow(target, "")

	case model.CopyInbound:
		if _, ok := store.ContainingZone(target); !ok {
			return deny(model.ReasonOutsideSafeZone, "copy destination must be inside a safe zone")
		}
		// The source may be anywhere, but it still has to resolve.
		var source string
		if req.Source != "" {
			src, reason, detail := canonical(req.Source)
			if reason != model.ReasonNone {
				return deny(reason, "source: "+detail)
			}
			source = src
		}
		return allow(target, source)

	case model.Move:
		if req.Source == "" {
			return deny(model.ReasonResolutionError, "move requires a source path")
		}
		if escapes(store, req.Source) {
			return deny(model.ReasonTraversalAttempt, "source")
		}
		source, reason, detail := canonical(req.Source)
		if reason != model.ReasonNone {
			return deny(reason, "source: "+detail)
		}
		if _, ok := store.ContainingZone(source); !ok {
			return deny(model.ReasonOutsideSafeZone, "cannot move from outside a safe zone")
		}
		if _, ok := store.ContainingZone(target); !ok {
			return deny(model.ReasonOutsideSafeZone, "cannot move to outside a safe zone")
		}
		return allow(target, source)
	}

	return deny(model.ReasonOutsideSafeZone, "unhandled operation tier")
}

// escapes is the cheap pre-canonicalization filter: a path with ".."
// segments whose lexical form is outside every zone.
func escapes(store *policy.Store, raw string) bool {
	if !canon.HasParentSegment(raw) {
		return false
	}
	lexical, err := canon.Lexical(raw)
	if err != nil {
		return true
	}
	return !store.LexicallyContained(lexical)
}

func canonical(raw string) (string, model.Reason, string) {
	p, err := canon.Path(raw)
	switch {
	case err == nil:
		return p, model.ReasonNone, ""
	case errors.Is(err, canon.ErrNoExistingAncestor):
		return "", model.ReasonNonExistentParent, err.Error()
	default:
		return "", model.ReasonResolutionError, err.Error()
	}
}

func knownTier(t model.OperationTier) bool {
	switch t {
	case model.ReadOnly, model.WriteInZone, model.CopyInbound, model.CopyOutbound, model.Delete, model.Move:
		return true
	}
	return false
}

func allow(path, source string) model.PathVerdict {
	return model.PathVerdict{Decision: model.Allow, Path: path, Source: source}
}

func deny(reason model.Reason, detail string) model.PathVerdict {
	return model.PathVerdict{Decision: model.Deny, Reason: reason, Detail: detail}
}
