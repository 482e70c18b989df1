package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"promptswap/internal/credentials"
	"promptswap/internal/llm"
	"promptswap/internal/models"
)

const instructions = "You manage a crypto portfolio for the user. Read the user instructions, the per-token news, " +
	"technical and order book reports, the performance review, the current portfolio and your previous responses. " +
	"Decide whether to rebalance the first two portfolio tokens. When rebalancing, newAllocation is the percentage " +
	"of their combined value to hold in the first token and must respect every floor. Keep shortReport under 255 characters."

// Call is one decision round trip. Prompt and Response are set whenever the
// AI answered, even if the answer was rejected.
type Call struct {
	Decision *Decision
	Prompt   string
	Response string
}

type Engine struct {
	AI   llm.Completer
	Keys credentials.Provider
}

// Decide sends payload to the agent's model, then parses and validates the
// verdict. A returned Call may accompany the error.
func (e *Engine) Decide(ctx context.Context, agent *models.Agent, payload any) (*Call, error) {
	if e == nil || e.AI == nil || e.Keys == nil {
		return nil, errors.New("decision engine not configured")
	}
	key, err := e.Keys.AIKey(ctx, agent.UserID)
	if err != nil {
		return nil, fmt.Errorf("ai key: %w", err)
	}
	prompt, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	raw, err := e.AI.Complete(ctx, llm.Request{
		Model:        agent.Model,
		Instructions: instructions,
		Schema:       decisionSchema,
		Payload:      payload,
		APIKey:       key,
	})
	if err != nil {
		return nil, err
	}
	call := &Call{Prompt: string(prompt), Response: raw}
	decision, err := ParseDecision(raw)
	if err != nil {
		return call, err
	}
	call.Decision = decision
	if err := Validate(decision, agent.Tokens); err != nil {
		return call, err
	}
	return call, nil
}
