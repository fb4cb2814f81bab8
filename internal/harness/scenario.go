package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML-defined sync test case.
type Scenario struct {
	// Name uniquely identifies the scenario; the golden file shares it.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Steps run in order against the wired stack.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is a single scenario action. Op selects the action; the remaining
// fields carry its arguments.
type Step struct {
	// Op is one of: add_subject, add_assessment, update_assessment,
	// delete_assessment, sign_in, sign_out, sync, remote_snapshot,
	// advance_ms.
	Op string `yaml:"op"`

	// add_subject
	Name string `yaml:"name,omitempty"`
	Icon string `yaml:"icon,omitempty"`

	// add_assessment / update_assessment / delete_assessment
	ID      string   `yaml:"id,omitempty"`
	Subject string   `yaml:"subject,omitempty"`
	Period  string   `yaml:"period,omitempty"`
	Type    string   `yaml:"type,omitempty"`
	Score   *float64 `yaml:"score,omitempty"`
	Total   *float64 `yaml:"total,omitempty"`
	Weight  *float64 `yaml:"weight,omitempty"`

	// sign_in
	User string `yaml:"user,omitempty"`

	// remote_snapshot
	Kind string    `yaml:"kind,omitempty"`
	Docs []DocSpec `yaml:"docs,omitempty"`

	// advance_ms
	Ms int64 `yaml:"ms,omitempty"`
}

// DocSpec is a remote document in a remote_snapshot step.
type DocSpec struct {
	ID     string         `yaml:"id"`
	Fields map[string]any `yaml:"fields"`
}

// Assertion validates a slice of the final state.
type Assertion struct {
	// Type is one of: pending_count, subject_count, remote_count, grade.
	Type string `yaml:"type"`

	// pending_count / subject_count / remote_count
	Count int `yaml:"count"`

	// remote_count
	Kind string `yaml:"kind,omitempty"`

	// grade
	Subject string  `yaml:"subject,omitempty"`
	Period  string  `yaml:"period,omitempty"`
	Value   float64 `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertPendingCount = "pending_count"
	AssertSubjectCount = "subject_count"
	AssertRemoteCount  = "remote_count"
	AssertGrade        = "grade"
)

// Step op constants.
const (
	OpAddSubject       = "add_subject"
	OpAddAssessment    = "add_assessment"
	OpUpdateAssessment = "update_assessment"
	OpDeleteAssessment = "delete_assessment"
	OpSignIn           = "sign_in"
	OpSignOut          = "sign_out"
	OpSync             = "sync"
	OpRemoteSnapshot   = "remote_snapshot"
	OpAdvanceMs        = "advance_ms"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields fail
// the load so typos surface as errors, not silently ignored steps.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Op {
	case OpAddSubject:
		if s.Name == "" {
			return fmt.Errorf("steps[%d]: add_subject needs name", index)
		}
	case OpAddAssessment:
		if s.Subject == "" || s.Period == "" {
			return fmt.Errorf("steps[%d]: add_assessment needs subject and period", index)
		}
		if s.Score == nil || s.Total == nil || s.Weight == nil {
			return fmt.Errorf("steps[%d]: add_assessment needs score, total and weight", index)
		}
	case OpUpdateAssessment:
		if s.ID == "" {
			return fmt.Errorf("steps[%d]: update_assessment needs id", index)
		}
	case OpDeleteAssessment:
		if s.ID == "" {
			return fmt.Errorf("steps[%d]: delete_assessment needs id", index)
		}
	case OpSignIn:
		if s.User == "" {
			return fmt.Errorf("steps[%d]: sign_in needs user", index)
		}
	case OpRemoteSnapshot:
		if s.Kind == "" {
			return fmt.Errorf("steps[%d]: remote_snapshot needs kind", index)
		}
	case OpSignOut, OpSync:
	case OpAdvanceMs:
		if s.Ms <= 0 {
			return fmt.Errorf("steps[%d]: advance_ms needs a positive ms", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertPendingCount, AssertSubjectCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRemoteCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: remote_count needs kind", index)
		}
	case AssertGrade:
		if a.Subject == "" || a.Period == "" {
			return fmt.Errorf("assertions[%d]: grade needs subject and period", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
