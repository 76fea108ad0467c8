package alert

// EventReloadFailed is the Type of alerts raised when a policy reload fails.
const EventReloadFailed = "reload_failed"

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Tool       string `json:"tool,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Target     string `json:"target,omitempty"`
	Host       string `json:"host,omitempty"`
	Decision   string `json:"decision,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Detail     string `json:"detail,omitempty"`
	PolicyHash string `json:"policy_hash,omitempty"`
	Type       string `json:"type,omitempty"`
}
