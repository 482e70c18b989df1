package trader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"promptswap/internal/credentials"
	"promptswap/internal/llm"
	"promptswap/internal/models"
)

func decisionResponse(result string) string {
	return fmt.Sprintf(`{"output":[{"type":"message","content":[{"type":"output_text","text":%q}]}]}`, `{"result":`+result+`}`)
}

func floors() []models.AgentToken {
	return []models.AgentToken{
		{Token: "BTC", MinAllocationPercent: 10},
		{Token: "ETH", MinAllocationPercent: 20},
	}
}

func ptr(v float64) *float64 { return &v }

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision(decisionResponse(`{"rebalance":true,"newAllocation":40,"shortReport":"shift to BTC"}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !d.Rebalance || d.NewAllocation == nil || *d.NewAllocation != 40 || d.ShortReport != "shift to BTC" {
		t.Fatalf("decision=%+v", d)
	}

	hold, err := ParseDecision(decisionResponse(`{"rebalance":false,"newAllocation":null,"shortReport":"hold"}`))
	if err != nil || hold.Rebalance || hold.NewAllocation != nil {
		t.Fatalf("hold=%+v err=%v", hold, err)
	}
}

func TestParseDecision_Invalid(t *testing.T) {
	cases := []string{
		`garbage`,
		decisionResponse(`{"newAllocation":40,"shortReport":"x"}`),
		decisionResponse(`{"rebalance":true,"newAllocation":40}`),
		decisionResponse(`{"rebalance":"yes","shortReport":"x"}`),
		decisionResponse(`{"rebalance":true,"newAllocation":"forty","shortReport":"x"}`),
		`{"output":[{"type":"message","content":[{"type":"output_text","text":"{\"rebalance\":true}"}]}]}`,
	}
	for _, raw := range cases {
		if _, err := ParseDecision(raw); !errors.Is(err, ErrInvalidResponse) {
			t.Fatalf("raw=%s err=%v want ErrInvalidResponse", raw, err)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		d    Decision
		ok   bool
	}{
		{"hold", Decision{Rebalance: false}, true},
		{"missing allocation", Decision{Rebalance: true}, false},
		{"negative", Decision{Rebalance: true, NewAllocation: ptr(-1)}, false},
		{"above 100", Decision{Rebalance: true, NewAllocation: ptr(101)}, false},
		{"first floor", Decision{Rebalance: true, NewAllocation: ptr(5)}, false},
		{"second floor", Decision{Rebalance: true, NewAllocation: ptr(85)}, false},
		{"at floors", Decision{Rebalance: true, NewAllocation: ptr(10)}, true},
		{"upper edge", Decision{Rebalance: true, NewAllocation: ptr(80)}, true},
	}
	for _, c := range cases {
		err := Validate(&c.d, floors())
		if (err == nil) != c.ok {
			t.Fatalf("%s: err=%v want ok=%v", c.name, err, c.ok)
		}
		if err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("%s: err=%T want *ValidationError", c.name, err)
			}
		}
	}
}

func TestValidate_CarriesOffendingValue(t *testing.T) {
	err := Validate(&Decision{Rebalance: true, NewAllocation: ptr(5)}, floors())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.NewAllocation == nil || *verr.NewAllocation != 5 {
		t.Fatalf("err=%v want ValidationError with newAllocation=5", err)
	}
}

type stubAI struct {
	raw   string
	calls int
	req   llm.Request
}

func (s *stubAI) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	s.req = req
	return s.raw, nil
}

func TestEngine_Decide(t *testing.T) {
	ai := &stubAI{raw: decisionResponse(`{"rebalance":true,"newAllocation":5,"shortReport":"all in ETH"}`)}
	e := &Engine{AI: ai, Keys: credentials.Static{OpenAI: "sk"}}
	agent := &models.Agent{UserID: 1, Model: "gpt-x", Tokens: floors()}
	call, err := e.Decide(context.Background(), agent, map[string]any{"k": "v"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v want ValidationError", err)
	}
	if call == nil || call.Prompt != `{"k":"v"}` || call.Response == "" || call.Decision == nil {
		t.Fatalf("call=%+v want prompt, response and decision", call)
	}
	if ai.req.Model != "gpt-x" || ai.req.Schema == nil {
		t.Fatalf("req=%+v want agent model with schema", ai.req)
	}
}
