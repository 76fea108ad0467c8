package audit

// AuditAction is the requested action as received, flattened for the log.
type AuditAction struct {
	Tool   string `json:"tool"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Source string `json:"source,omitempty"`
	Tier   string `json:"tier,omitempty"`
	Host   string `json:"host,omitempty"`
}

// AuditEntry is one line in the hash-chained JSONL audit log.
// All fields are structs (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type AuditEntry struct {
	ID         string      `json:"id"`
	Timestamp  string      `json:"ts"`
	Action     AuditAction `json:"action"`
	Decision   string      `json:"decision"`
	Reason     string      `json:"reason,omitempty"`
	Resolved   string      `json:"resolved,omitempty"`
	PolicyHash string      `json:"policy_hash"`
	PrevHash   string      `json:"prev_hash"`
}
