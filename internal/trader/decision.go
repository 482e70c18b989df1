// Package trader asks the AI for a rebalance verdict and refuses any verdict
// that is malformed or breaks the agent's allocation floors.
package trader

import (
	"encoding/json"
	"fmt"
	"strings"

	"promptswap/internal/llm"
	"promptswap/internal/models"
)

var ErrInvalidResponse = llm.ErrInvalidResponse

// Decision is a fully parsed verdict. NewAllocation is the percentage of the
// pair's combined value to hold in the agent's first token.
type Decision struct {
	Rebalance     bool     `json:"rebalance"`
	NewAllocation *float64 `json:"newAllocation"`
	ShortReport   string   `json:"shortReport"`
}

// ValidationError reports a well-formed decision that breaks policy.
type ValidationError struct {
	Reason        string
	NewAllocation *float64
}

func (e *ValidationError) Error() string {
	if e.NewAllocation == nil {
		return "invalid decision: " + e.Reason
	}
	return fmt.Sprintf("invalid decision: %s (newAllocation=%v)", e.Reason, *e.NewAllocation)
}

var decisionSchema = llm.ResultSchema("rebalance_decision", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"rebalance":     map[string]any{"type": "boolean"},
		"newAllocation": map[string]any{"type": []string{"number", "null"}},
		"shortReport":   map[string]any{"type": "string"},
	},
	"required":             []string{"rebalance", "newAllocation", "shortReport"},
	"additionalProperties": false,
})

// ParseDecision accepts only a complete decision; anything else is
// ErrInvalidResponse.
func ParseDecision(raw string) (*Decision, error) {
	var parsed struct {
		Rebalance     *bool           `json:"rebalance"`
		NewAllocation json.RawMessage `json:"newAllocation"`
		ShortReport   *string         `json:"shortReport"`
	}
	if err := llm.ExtractResult(raw, &parsed); err != nil {
		return nil, ErrInvalidResponse
	}
	if parsed.Rebalance == nil || parsed.ShortReport == nil {
		return nil, ErrInvalidResponse
	}
	d := &Decision{Rebalance: *parsed.Rebalance, ShortReport: strings.TrimSpace(*parsed.ShortReport)}
	if len(parsed.NewAllocation) > 0 && string(parsed.NewAllocation) != "null" {
		var v float64
		if err := json.Unmarshal(parsed.NewAllocation, &v); err != nil {
			return nil, ErrInvalidResponse
		}
		d.NewAllocation = &v
	}
	return d, nil
}

// Validate checks a rebalance against the [0,100] range and both pair floors.
// Only the first two tokens form the traded pair; floors of any further
// tokens are not checked here. Hold decisions always pass.
func Validate(d *Decision, tokens []models.AgentToken) error {
	if d == nil {
		return ErrInvalidResponse
	}
	if !d.Rebalance {
		return nil
	}
	if d.NewAllocation == nil {
		return &ValidationError{Reason: "newAllocation is required when rebalancing"}
	}
	alloc := *d.NewAllocation
	if alloc < 0 || alloc > 100 {
		return &ValidationError{Reason: "newAllocation must be within [0, 100]", NewAllocation: d.NewAllocation}
	}
	if len(tokens) < 2 {
		return &ValidationError{Reason: "agent needs at least two tokens", NewAllocation: d.NewAllocation}
	}
	first, second := tokens[0], tokens[1]
	if alloc < first.MinAllocationPercent {
		return &ValidationError{
			Reason:        fmt.Sprintf("%s allocation below its %v%% floor", strings.ToUpper(first.Token), first.MinAllocationPercent),
			NewAllocation: d.NewAllocation,
		}
	}
	if 100-alloc < second.MinAllocationPercent {
		return &ValidationError{
			Reason:        fmt.Sprintf("%s allocation below its %v%% floor", strings.ToUpper(second.Token), second.MinAllocationPercent),
			NewAllocation: d.NewAllocation,
		}
	}
	return nil
}
