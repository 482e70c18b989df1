package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidResponse covers every structural mismatch in a completion.
var ErrInvalidResponse = errors.New("invalid response")

// Schema is a strict JSON schema the completion must follow.
type Schema struct {
	Name       string
	Definition map[string]any
}

type Request struct {
	Model        string
	Instructions string
	Schema       *Schema
	// Payload is marshalled to JSON and sent as the user input.
	Payload any
	APIKey  string
}

// Completer returns the raw response body of one completion.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type responseEnvelope struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// MessageText returns the text of the first "message" output entry.
func MessageText(raw string) (string, error) {
	var env responseEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", ErrInvalidResponse
	}
	for _, item := range env.Output {
		if item.Type != "message" {
			continue
		}
		var sb strings.Builder
		for _, c := range item.Content {
			if c.Type == "output_text" || c.Type == "text" {
				sb.WriteString(c.Text)
			}
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			return "", ErrInvalidResponse
		}
		return text, nil
	}
	return "", ErrInvalidResponse
}

// ExtractResult decodes the ".result" member of the message text into dst.
func ExtractResult(raw string, dst any) error {
	text, err := MessageText(raw)
	if err != nil {
		return err
	}
	var wrapper struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return ErrInvalidResponse
	}
	if len(wrapper.Result) == 0 || string(wrapper.Result) == "null" {
		return ErrInvalidResponse
	}
	if err := json.Unmarshal(wrapper.Result, dst); err != nil {
		return ErrInvalidResponse
	}
	return nil
}

// ResultSchema wraps an object schema as {"result": inner}.
func ResultSchema(name string, inner map[string]any) *Schema {
	return &Schema{
		Name: name,
		Definition: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"result": inner},
			"required":             []string{"result"},
			"additionalProperties": false,
		},
	}
}
