// Package analyst wraps one AI call per judgment (news, technical, order book,
// performance) and shapes the inputs each call needs.
package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"promptswap/internal/credentials"
	"promptswap/internal/llm"
)

const (
	StageNews        = "news"
	StageTechnical   = "tech"
	StageOrderBook   = "orderbook"
	StagePerformance = "performance"

	MinScore = -5.0
	MaxScore = 5.0
)

// Analysis is the uniform judgment every analyst returns. Score runs from
// MinScore (strongly bearish) to MaxScore (strongly bullish); 0 is neutral.
type Analysis struct {
	Comment string  `json:"comment"`
	Score   float64 `json:"score"`
}

// Output is one analyst call. Prompt and Response are empty when the analyst
// answered without asking the AI.
type Output struct {
	Analysis Analysis
	Prompt   string
	Response string
}

func (o *Output) Logged() bool {
	return o != nil && o.Prompt != "" && o.Response != ""
}

// Outcome is the tagged result of one analyst stage: exactly one of Output
// (ok) or Err (failed) is set, or neither when the analysis is absent.
type Outcome struct {
	Output *Output
	Err    error
}

func Ok(o *Output) Outcome { return Outcome{Output: o} }

func Failed(err error) Outcome { return Outcome{Err: err} }

func (o Outcome) Absent() bool { return o.Output == nil && o.Err == nil }

func (o Outcome) Succeeded() bool { return o.Output != nil && o.Err == nil }

// Analysis returns the judgment to report. Failures become a neutral
// analysis carrying the error text; absent outcomes return nil.
func (o Outcome) Analysis() *Analysis {
	if o.Err != nil {
		return &Analysis{Comment: "Error: " + o.Err.Error(), Score: 0}
	}
	if o.Output == nil {
		return nil
	}
	a := o.Output.Analysis
	return &a
}

// TokenReport groups the per-token judgments handed to later stages.
// Missing judgments stay null in JSON.
type TokenReport struct {
	Token     string    `json:"token"`
	News      *Analysis `json:"news"`
	Tech      *Analysis `json:"tech"`
	OrderBook *Analysis `json:"orderbook"`
}

var analysisSchema = llm.ResultSchema("analysis", map[string]any{
	"type": "object",
	"properties": map[string]any{
		"comment": map[string]any{"type": "string"},
		"score":   map[string]any{"type": "number", "minimum": MinScore, "maximum": MaxScore},
	},
	"required":             []string{"comment", "score"},
	"additionalProperties": false,
})

// Caller performs the AI round trip shared by every analyst.
type Caller struct {
	AI    llm.Completer
	Keys  credentials.Provider
	Model string
}

type prompt struct {
	Instructions string `json:"instructions"`
	Input        any    `json:"input"`
}

func (c *Caller) ask(ctx context.Context, userID uint64, instructions string, input any) (*Output, error) {
	if c == nil || c.AI == nil || c.Keys == nil {
		return nil, errors.New("analyst AI not configured")
	}
	key, err := c.Keys.AIKey(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ai key: %w", err)
	}
	promptJSON, err := json.Marshal(prompt{Instructions: instructions, Input: input})
	if err != nil {
		return nil, err
	}
	raw, err := c.AI.Complete(ctx, llm.Request{
		Model:        c.Model,
		Instructions: instructions,
		Schema:       analysisSchema,
		Payload:      input,
		APIKey:       key,
	})
	if err != nil {
		return nil, err
	}
	var a Analysis
	if err := llm.ExtractResult(raw, &a); err != nil {
		return nil, err
	}
	a.Comment = strings.TrimSpace(a.Comment)
	a.Score = clampScore(a.Score)
	return &Output{Analysis: a, Prompt: string(promptJSON), Response: raw}, nil
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(MinScore, math.Min(MaxScore, v))
}
