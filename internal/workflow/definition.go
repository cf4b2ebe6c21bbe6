package workflow

import (
	"encoding/json"
	"strings"

	"extracto/internal/services"
)

// StepDefinition is one entry in a workflow document's step list.
type StepDefinition struct {
	Method  string          `json:"method"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

// IsEnabled reports whether a step should run. Steps are enabled unless the
// document says otherwise.
func (s StepDefinition) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Definition is the declarative workflow document stored on a workflow
// configuration. Model optionally overrides the configured LLM model for
// every step in this workflow.
type Definition struct {
	Steps []StepDefinition `json:"steps"`
	Model string           `json:"model"`
}

// ParseDefinition decodes a workflow document. A document that is empty or
// not valid JSON is a configuration error; step methods are validated at
// execution time.
func ParseDefinition(raw string) (*Definition, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "parse workflow",
			"workflow document is empty", nil)
	}
	var def Definition
	if err := json.Unmarshal([]byte(trimmed), &def); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "parse workflow",
			"malformed workflow document", err)
	}
	def.Model = strings.TrimSpace(def.Model)
	return &def, nil
}
