package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/safezone/internal/dispatch"
	"github.com/ppiankov/safezone/internal/model"
	"github.com/ppiankov/safezone/internal/policy"
)

// Run evaluates all cases in a scenario through d. Cases are independent.
func Run(s *Scenario, d *dispatch.Dispatcher) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := CaseResult{
			Index:          i + 1,
			Kind:           c.Action.Kind,
			Expected:       strings.ToLower(c.Expect),
			ExpectedReason: c.ExpectReason(),
		}

		action, err := c.Action.descriptor()
		if err != nil {
			cr.Error = err.Error()
			cr.Target = c.Action.Path + c.Action.Command
			result.Failed++
			result.Cases = append(result.Cases, cr)
			continue
		}
		cr.Target = action.Target()

		v := d.Dispatch(action)
		cr.Actual = string(v.Decision)
		cr.Reason = string(v.Reason)

		if cr.Actual == cr.Expected && (cr.ExpectedReason == "" || cr.ExpectedReason == cr.Reason) {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

// ExpectReason returns the normalized expected reason.
func (c Case) ExpectReason() string {
	return strings.ToLower(strings.TrimSpace(c.Reason))
}

func (a ScenarioAction) descriptor() (model.ActionDescriptor, error) {
	tool := a.Tool
	if tool == "" {
		tool = "scenario"
	}
	switch strings.ToLower(a.Kind) {
	case string(model.KindPath), "file":
		tier, err := model.ParseTier(a.Tier)
		if err != nil {
			return nil, err
		}
		return model.PathAction{
			PathRequest: model.PathRequest{
				Path:   policy.ExpandEnv(a.Path),
				Source: policy.ExpandEnv(a.Source),
				Tier:   tier,
			},
			Tool: tool,
		}, nil
	case string(model.KindCommand), "ssh":
		return model.CommandAction{
			CommandRequest: model.CommandRequest{Command: a.Command, Host: a.Host},
			Tool:           tool,
		}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return &s, nil
}

// LoadAndRun loads a scenario file and the policy at policyPath, and runs.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	store, _, err := policy.Load(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	d, err := dispatch.New(store)
	if err != nil {
		return nil, err
	}

	result := Run(s, d)
	result.File = path
	return result, nil
}
