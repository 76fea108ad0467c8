package scenario

// ScenarioAction defines the action under test. Kind selects which fields
// apply: path/tier/source for "path", command/host for "command".
type ScenarioAction struct {
	Kind    string `yaml:"kind"`
	Path    string `yaml:"path,omitempty"`
	Tier    string `yaml:"tier,omitempty"`
	Source  string `yaml:"source,omitempty"`
	Command string `yaml:"command,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Tool    string `yaml:"tool,omitempty"`
}

// Case is one test case within a scenario.
type Case struct {
	Action ScenarioAction `yaml:"action"`
	Expect string         `yaml:"expect"`
	// Reason, when set, must match the deny reason exactly.
	Reason string `yaml:"reason,omitempty"`
}

// Scenario is a named collection of policy test cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index          int    `json:"index"`
	Passed         bool   `json:"passed"`
	Kind           string `json:"kind"`
	Target         string `json:"target"`
	Expected       string `json:"expected"`
	Actual         string `json:"actual"`
	ExpectedReason string `json:"expected_reason,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
