package model

// Decision is the binary outcome of an authorization check.
type Decision string

const (
	Allow Decision = "allow"
	Deny  Decision = "deny"
)

// Reason is the machine-distinguishable cause of a Deny. Allow verdicts carry
// the empty reason.
type Reason string

const (
	ReasonNone Reason = ""

	// Path denials.
	ReasonOutsideSafeZone   Reason = "outside_safe_zone"
	ReasonTraversalAttempt  Reason = "traversal_attempt"
	ReasonNonExistentParent Reason = "non_existent_parent"
	ReasonResolutionError   Reason = "resolution_error"

	// Command denials.
	ReasonCommandNotWhitelisted      Reason = "command_not_whitelisted"
	ReasonEmptyCommand               Reason = "empty_command"
	ReasonShellMetacharacterRejected Reason = "shell_metacharacter_rejected"

	// ReasonUnknownAction is returned for descriptors the dispatcher cannot route.
	ReasonUnknownAction Reason = "unknown_action"
)

// Description returns a short human-readable explanation of the reason.
func (r Reason) Description() string {
	switch r {
	case ReasonNone:
		return "allowed"
	case ReasonOutsideSafeZone:
		return "path is outside every safe zone"
	case ReasonTraversalAttempt:
		return "parent-directory segments escape every safe zone"
	case ReasonNonExistentParent:
		return "no existing ancestor could be resolved"
	case ReasonResolutionError:
		return "path could not be canonicalized"
	case ReasonCommandNotWhitelisted:
		return "command is not in the allowed command list"
	case ReasonEmptyCommand:
		return "command is empty"
	case ReasonShellMetacharacterRejected:
		return "command chaining or substitution is not permitted"
	case ReasonUnknownAction:
		return "unrecognised action"
	default:
		return string(r)
	}
}

// PathVerdict is the output of path containment resolution.
// Path is the canonical target and is only meaningful when Decision is Allow.
type PathVerdict struct {
	Decision Decision `json:"decision"`
	Reason   Reason   `json:"reason,omitempty"`
	Path     string   `json:"path,omitempty"`
	Source   string   `json:"source,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// Allowed reports whether the verdict permits the action.
func (v PathVerdict) Allowed() bool { return v.Decision == Allow }

// CommandVerdict is the output of command whitelist resolution.
type CommandVerdict struct {
	Decision    Decision `json:"decision"`
	Reason      Reason   `json:"reason,omitempty"`
	BaseCommand string   `json:"base_command,omitempty"`
	Host        string   `json:"host,omitempty"`
}

// Allowed reports whether the verdict permits the action.
func (v CommandVerdict) Allowed() bool { return v.Decision == Allow }

// Verdict is what the dispatcher hands back to collaborators. It flattens the
// two resolver verdicts so callers can check one field.
type Verdict struct {
	Kind        ActionKind `json:"kind"`
	Decision    Decision   `json:"decision"`
	Reason      Reason     `json:"reason,omitempty"`
	Path        string     `json:"path,omitempty"`
	Source      string     `json:"source,omitempty"`
	BaseCommand string     `json:"base_command,omitempty"`
	Detail      string     `json:"detail,omitempty"`
	PolicyHash  string     `json:"policy_hash,omitempty"`
}

// Allowed reports whether the verdict permits the action.
func (v Verdict) Allowed() bool { return v.Decision == Allow }
