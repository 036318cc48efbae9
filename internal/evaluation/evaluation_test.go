package evaluation

import (
	"context"
	"errors"
	"testing"

	"fundraising-school-go/internal/model"
	"fundraising-school-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply string
	err   error
	got   llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Content: f.reply, Model: "gpt-4o-mini", RequestID: "req-1"}, nil
}

func transcript() []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Content: "We are FlowCo, $40k MRR"},
		{Role: model.RoleAssistant, Content: "Fit: Promising"},
	}
}

func TestEvaluateBuildsRequest(t *testing.T) {
	fc := &fakeCompleter{reply: `{"summary":"ok","fitLabel":"strong"}`}
	ev, err := NewEvaluator(fc, "eval-model").Evaluate(context.Background(), transcript(), "")
	require.NoError(t, err)

	assert.Equal(t, "ok", ev.Raw["summary"])
	assert.Equal(t, "req-1", ev.RequestID)
	assert.Equal(t, "eval-model", fc.got.Model)
	assert.Equal(t, 700, fc.got.MaxTokens)
	require.NotNil(t, fc.got.Temperature)
	assert.InDelta(t, 0.2, *fc.got.Temperature, 1e-6)
	require.Len(t, fc.got.Messages, 2)
	assert.Equal(t, DefaultPrompt, fc.got.Messages[0].Content)
	assert.Equal(t,
		"Conversation transcript:\n\nUSER: We are FlowCo, $40k MRR\n\nASSISTANT: Fit: Promising\n\nReturn valid JSON now.",
		fc.got.Messages[1].Content)
}

func TestEvaluatePromptOverrideAndFences(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"summary\":\"fenced\"}\n```"}
	ev, err := NewEvaluator(fc, "").Evaluate(context.Background(), transcript(), "  custom  ")
	require.NoError(t, err)
	assert.Equal(t, "fenced", ev.Raw["summary"])
	assert.Equal(t, "custom", fc.got.Messages[0].Content)
}

func TestEvaluateRejectsInvalidOutput(t *testing.T) {
	for _, reply := range []string{"", "not json", "[1,2]", "null"} {
		fc := &fakeCompleter{reply: reply}
		_, err := NewEvaluator(fc, "").Evaluate(context.Background(), transcript(), "")
		var evalErr *EvaluationError
		assert.True(t, errors.As(err, &evalErr), "reply %q", reply)
	}
}

func TestEvaluatePropagatesProviderError(t *testing.T) {
	pe := &llm.ProviderError{Status: 503, Message: "overloaded"}
	_, err := NewEvaluator(&fakeCompleter{err: pe}, "").Evaluate(context.Background(), transcript(), "")
	var got *llm.ProviderError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, 503, got.Status)
}

func TestNormalizeFitLabel(t *testing.T) {
	cases := map[string]string{
		"strong fit":  "Strong Fit",
		"Strong":      "Strong Fit",
		"STRONG FIT ": "Strong Fit",
		"promising":   "Promising",
		"not":         "Not a Fit",
		"mon":         "Monitor",
		"excellent":   "",
		"":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeFitLabel(in), "input %q", in)
	}
}

func TestNormalizeAliasesAndFallbackSummary(t *testing.T) {
	r := Normalize(map[string]any{
		"summary_text":  "  Seed-stage payments.  ",
		"company_name":  "FlowCo",
		"founder_name":  "Ana",
		"founder_email": "ana@flowco.io",
		"founderPhone":  42,
		"fit_label":     "promising",
		"signals":       []any{" $40k MRR ", "", 7, "3 pilots"},
	}, FallbackSummary)

	assert.Equal(t, "Seed-stage payments.", r.Summary)
	assert.Equal(t, "FlowCo", r.CompanyName)
	assert.Equal(t, "Ana", r.FounderName)
	assert.Equal(t, "ana@flowco.io", r.FounderEmail)
	assert.Equal(t, "", r.FounderPhone)
	assert.Equal(t, "Promising", r.FitLabel)
	assert.Equal(t, []string{"$40k MRR", "3 pilots"}, r.Signals)

	empty := Normalize(map[string]any{"summary": "   "}, FallbackSummary)
	assert.Equal(t, FallbackSummary, empty.Summary)
	assert.Empty(t, empty.ConnectorsList)
}

func TestNormalizeConnectorsFromString(t *testing.T) {
	r := Normalize(map[string]any{"connectors": "Jane Doe — intros to seed funds\nJohn Roe"}, FallbackSummary)
	require.Len(t, r.ConnectorsList, 2)
	assert.Equal(t, Connector{Name: "Jane Doe", Why: "intros to seed funds"}, r.ConnectorsList[0])
	assert.Equal(t, Connector{Name: "John Roe"}, r.ConnectorsList[1])
	assert.Equal(t, "Jane Doe — intros to seed funds\nJohn Roe", r.ConnectorsText)

	again := Normalize(map[string]any{"connectors": r.ConnectorsText}, FallbackSummary)
	assert.Equal(t, r.ConnectorsList, again.ConnectorsList)
	assert.Equal(t, r.ConnectorsText, again.ConnectorsText)
}

func TestNormalizeConnectorsMixedArray(t *testing.T) {
	r := Normalize(map[string]any{"connectors": []any{
		map[string]any{"name": "Acme Ventures", "why": "fintech seed"},
		map[string]any{"why": "ops help"},
		map[string]any{},
		"Lia: payments operator",
		"  ",
		12,
	}}, FallbackSummary)

	require.Len(t, r.ConnectorsList, 3)
	assert.Equal(t, "Acme Ventures — fintech seed\nops help\nLia — payments operator", r.ConnectorsText)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	first := Normalize(map[string]any{
		"summary":    "FlowCo automates AP.",
		"fitLabel":   "strong",
		"connectors": "Jean-Luc — operator; Acme: seed fund",
		"signals":    []any{"$40k MRR"},
	}, FallbackSummary)
	second := Normalize(first.AsRaw(), "other")

	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.FitLabel, second.FitLabel)
	assert.Equal(t, first.ConnectorsText, second.ConnectorsText)
	assert.Equal(t, first.ConnectorsList, second.ConnectorsList)
	assert.Equal(t, first.Signals, second.Signals)
}

func TestFallbackFromCompletion(t *testing.T) {
	r := FallbackFromCompletion("## Verdict\nFit: strong fit\nWhy it matters: big market")
	assert.Equal(t, "Strong Fit", r.FitLabel)
	assert.Contains(t, r.Summary, "Why it matters")

	r = FallbackFromCompletion("fit - Needs more data")
	assert.Equal(t, "Needs more data", r.FitLabel)

	r = FallbackFromCompletion("   ")
	assert.Equal(t, FallbackSummary, r.Summary)
	assert.Equal(t, "", r.FitLabel)
}
