package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	classifierdomain "github.com/syncorch/syncd/internal/classifier/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	response string
	err      error
	lastTemp float64
}

func (f *fakeGateway) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	f.lastTemp = temperature
	return f.response, f.err
}

func TestNew_ClampsTemperature(t *testing.T) {
	c := New(&fakeGateway{}, 0.9, time.Second)
	assert.LessOrEqual(t, c.temperature, 0.2)
}

func TestClassify_ParsesAllFourLabels(t *testing.T) {
	gw := &fakeGateway{response: "ACTION: archive\nPRIORITY: low\nREASONING: newsletter\nSUGGESTED_RESPONSE: \n"}
	c := New(gw, 0.1, time.Second)

	result, ok := c.Classify(context.Background(), classifierdomain.EmailInput{Subject: "Weekly digest"}, nil, nil)
	require.True(t, ok)
	assert.Equal(t, classifierdomain.ActionArchive, result.Action)
	assert.Equal(t, classifierdomain.PriorityLow, result.Priority)
	assert.Equal(t, "newsletter", result.Reasoning)
}

func TestClassify_UnknownActionCollapsesToNoAction(t *testing.T) {
	gw := &fakeGateway{response: "ACTION: launch_missiles\nPRIORITY: high\nREASONING: n/a"}
	c := New(gw, 0.1, time.Second)

	result, ok := c.Classify(context.Background(), classifierdomain.EmailInput{}, nil, nil)
	require.True(t, ok)
	assert.Equal(t, classifierdomain.ActionNoAction, result.Action)
}

func TestClassify_MissingLabelsDefaultToReplyMedium(t *testing.T) {
	gw := &fakeGateway{response: "this response has no labeled lines at all"}
	c := New(gw, 0.1, time.Second)

	result, ok := c.Classify(context.Background(), classifierdomain.EmailInput{}, nil, nil)
	require.True(t, ok)
	assert.Equal(t, classifierdomain.ActionReply, result.Action)
	assert.Equal(t, classifierdomain.PriorityMedium, result.Priority)
}

func TestClassify_GatewayFailureReturnsNotOk(t *testing.T) {
	gw := &fakeGateway{err: errors.New("upstream unavailable")}
	c := New(gw, 0.1, time.Second)

	result, ok := c.Classify(context.Background(), classifierdomain.EmailInput{}, nil, nil)
	assert.False(t, ok)
	assert.Equal(t, classifierdomain.ActionReply, result.Action)
	assert.Contains(t, result.Reasoning, "classifier unavailable")
}

func TestClassify_CaseInsensitiveMatching(t *testing.T) {
	gw := &fakeGateway{response: "Action: Flag_Important\nPriority: HIGH\nReasoning: urgent\n"}
	c := New(gw, 0.1, time.Second)

	result, ok := c.Classify(context.Background(), classifierdomain.EmailInput{}, nil, nil)
	require.True(t, ok)
	assert.Equal(t, classifierdomain.ActionFlagImportant, result.Action)
	assert.Equal(t, classifierdomain.PriorityHigh, result.Priority)
}

func TestBuildPrompt_IncludesHistoryAndRules(t *testing.T) {
	history := []classifierdomain.ConversationEmail{{From: "a@b.com", Subject: "Re: hi", Date: "2026-01-01", Content: "earlier message"}}
	rules := []classifierdomain.Rule{{Keyword: "invoice", Action: "flag_important"}}
	prompt := buildPrompt(classifierdomain.EmailInput{From: "x@y.com", Subject: "hi"}, history, rules)

	assert.Contains(t, prompt, "CONVERSATION HISTORY")
	assert.Contains(t, prompt, "earlier message")
	assert.Contains(t, prompt, "USER RULES")
	assert.Contains(t, prompt, `when email contains "invoice"`)
	assert.Contains(t, prompt, "ACTIONS: reply, forward, new_email, no_action, flag_important, archive, delete")
}

func TestParseRule_ValidAndMalformed(t *testing.T) {
	rule, ok := ParseRule(`when email contains "urgent", perform "forward" to boss@co.com`)
	require.True(t, ok)
	assert.Equal(t, "urgent", rule.Keyword)
	assert.Equal(t, "forward", rule.Action)
	assert.Equal(t, "boss@co.com", rule.Recipient)

	_, ok = ParseRule("not a rule at all")
	assert.False(t, ok)
}

func TestBudgetFromLimit(t *testing.T) {
	assert.Equal(t, 500, BudgetFromLimit(0))
	assert.Equal(t, 500, BudgetFromLimit(-5))
	assert.Equal(t, 50, BudgetFromLimit(50))
}
