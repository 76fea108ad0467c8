package model

import (
	"fmt"
	"strings"
)

// OperationTier selects which safe-zone predicate applies to a path request.
type OperationTier int

const (
	ReadOnly OperationTier = iota
	WriteInZone
	CopyInbound
	CopyOutbound
	Delete
	Move
)

var tierNames = map[OperationTier]string{
	ReadOnly:     "read",
	WriteInZone:  "write",
	CopyInbound:  "copy_in",
	CopyOutbound: "copy_out",
	Delete:       "delete",
	Move:         "move",
}

func (t OperationTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// ParseTier maps a tier name to an OperationTier. Accepts the canonical names
// plus a few aliases used by tool adapters ("create", "mkdir", "edit").
func ParseTier(s string) (OperationTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "read_only", "readonly":
		return ReadOnly, nil
	case "write", "write_in_zone", "create", "mkdir", "edit":
		return WriteInZone, nil
	case "copy_in", "copy_inbound", "copy":
		return CopyInbound, nil
	case "copy_out", "copy_outbound":
		return CopyOutbound, nil
	case "delete", "remove", "rm":
		return Delete, nil
	case "move", "rename":
		return Move, nil
	default:
		return 0, fmt.Errorf("unknown operation tier %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t OperationTier) MarshalText() ([]byte, error) {
	if _, ok := tierNames[t]; !ok {
		return nil, fmt.Errorf("unknown operation tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *OperationTier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
