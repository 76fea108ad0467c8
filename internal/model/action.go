package model

// ActionKind tags which resolver an ActionDescriptor is routed to.
type ActionKind string

const (
	KindPath    ActionKind = "path"
	KindCommand ActionKind = "command"
)

// ActionDescriptor is a requested action. The set of implementations is
// closed: only PathAction and CommandAction satisfy it.
type ActionDescriptor interface {
	Kind() ActionKind
	// Target is the raw path or command line, as received.
	Target() string
	// RequestingTool names the tool that asked, for audit.
	RequestingTool() string
	sealed()
}

// PathRequest is a filesystem request. Source is only read for CopyInbound
// and Move.
type PathRequest struct {
	Path   string        `json:"path"`
	Source string        `json:"source,omitempty"`
	Tier   OperationTier `json:"tier"`
}

// CommandRequest is a command line destined for a remote host.
type CommandRequest struct {
	Command string `json:"command"`
	Host    string `json:"host,omitempty"`
}

// PathAction wraps a PathRequest with the requesting tool's name.
type PathAction struct {
	PathRequest
	Tool string `json:"tool"`
}

func (a PathAction) Kind() ActionKind       { return KindPath }
func (a PathAction) Target() string         { return a.Path }
func (a PathAction) RequestingTool() string { return a.Tool }
func (PathAction) sealed()                  {}

// CommandAction wraps a CommandRequest with the requesting tool's name.
type CommandAction struct {
	CommandRequest
	Tool string `json:"tool"`
}

func (a CommandAction) Kind() ActionKind       { return KindCommand }
func (a CommandAction) Target() string         { return a.Command }
func (a CommandAction) RequestingTool() string { return a.Tool }
func (CommandAction) sealed()                  {}
