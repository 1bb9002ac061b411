// Package usecase implements the Email Classifier (C7): builds the
// FROM/TO/SUBJECT/DATE/CONTENT prompt, calls the LLM gateway, and
// parses its four-labeled-line response into a Classification.
// Grounded on the teacher's pkg/gemini/service.go raw-HTTP Gemini call
// shape (generateContent endpoint, generationConfig.temperature) and
// on pkg/ai/fallback.go's string-sniffing connection/quota error
// classification, generalized here into the errs.Kind taxonomy.
package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	classifierdomain "github.com/syncorch/syncd/internal/classifier/domain"
	"github.com/syncorch/syncd/pkg/errs"
)

const geminiGenerateURLTemplate = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s"

// Gateway is the LLM call boundary; Classifier depends on this
// interface rather than a concrete client so tests can substitute a
// fake without reaching the network.
type Gateway interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// GeminiGateway calls the Gemini generateContent REST endpoint
// directly, the way pkg/gemini.GeminiService does, rather than through
// the genai SDK client.
type GeminiGateway struct {
	APIKey string
	Model  string
	HTTP   *http.Client
}

func NewGeminiGateway(apiKey, model string) *GeminiGateway {
	return &GeminiGateway{APIKey: apiKey, Model: model, HTTP: &http.Client{}}
}

func (g *GeminiGateway) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	url := fmt.Sprintf(geminiGenerateURLTemplate, g.Model, g.APIKey)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature": temperature,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errs.New(errs.ParseError, "failed to encode gateway request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errs.New(errs.InvalidArgument, "failed to build gateway request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return "", errs.New(errs.TransientUpstream, "gateway request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", errs.New(errs.RateLimited, "gateway rate limited", fmt.Errorf("%s", respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return "", errs.New(errs.ClassificationUnavailable, "gateway returned non-200", fmt.Errorf("%s: %s", resp.Status, respBody))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", errs.New(errs.ParseError, "failed to decode gateway response", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", errs.New(errs.ClassificationUnavailable, "gateway returned no candidates", nil)
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

// Classifier runs the prompt/parse contract of spec §4.7 over a
// Gateway.
type Classifier struct {
	gateway     Gateway
	temperature float64
	timeout     time.Duration
}

func New(gateway Gateway, temperature float64, timeout time.Duration) *Classifier {
	if temperature > 0.2 {
		temperature = 0.2
	}
	return &Classifier{gateway: gateway, temperature: temperature, timeout: timeout}
}

// defaultClassification is returned whenever the gateway call fails or
// times out; is_classified is left false by the caller so the next
// sync cycle retries.
func defaultClassification(reason string) classifierdomain.Classification {
	return classifierdomain.Classification{
		Action: classifierdomain.ActionReply, Priority: classifierdomain.PriorityMedium,
		Reasoning: reason,
	}
}

// Classify builds the prompt, calls the gateway under a per-email
// timeout, and parses the response. It never returns an error: any
// failure collapses into the default classification per spec §4.7. ok
// reports whether the gateway call succeeded — callers must only set
// is_classified when ok is true, so a failed call is retried on the
// next pass.
func (c *Classifier) Classify(ctx context.Context, email classifierdomain.EmailInput, history []classifierdomain.ConversationEmail, rules []classifierdomain.Rule) (result classifierdomain.Classification, ok bool) {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := buildPrompt(email, history, rules)
	raw, err := c.gateway.Generate(callCtx, prompt, c.temperature)
	if err != nil {
		return defaultClassification(fmt.Sprintf("classifier unavailable: %v", err)), false
	}
	return parseResponse(raw), true
}

func buildPrompt(email classifierdomain.EmailInput, history []classifierdomain.ConversationEmail, rules []classifierdomain.Rule) string {
	var b strings.Builder

	b.WriteString("You are an email triage assistant. Read the email below and decide the single best action, ")
	b.WriteString("its priority, your reasoning, and a suggested response where applicable.\n\n")

	if len(history) > 0 {
		b.WriteString("CONVERSATION HISTORY (oldest first):\n")
		for _, h := range history {
			fmt.Fprintf(&b, "FROM: %s\nSUBJECT: %s\nDATE: %s\nCONTENT: %s\n---\n", h.From, h.Subject, h.Date, h.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString("EMAIL TO CLASSIFY:\n")
	fmt.Fprintf(&b, "FROM: %s\nTO: %s\nSUBJECT: %s\nDATE: %s\nCONTENT: %s\n\n", email.From, email.To, email.Subject, email.Date, email.Content)

	if len(rules) > 0 {
		b.WriteString("USER RULES:\n")
		for i, r := range rules {
			if r.Recipient != "" {
				fmt.Fprintf(&b, "%d. when email contains \"%s\", perform \"%s\" to %s\n", i+1, r.Keyword, r.Action, r.Recipient)
			} else {
				fmt.Fprintf(&b, "%d. when email contains \"%s\", perform \"%s\"\n", i+1, r.Keyword, r.Action)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("ACTIONS: reply, forward, new_email, no_action, flag_important, archive, delete\n")
	b.WriteString("PRIORITIES: high, medium, low\n\n")
	b.WriteString("Respond with exactly four labeled lines, nothing else:\n")
	b.WriteString("ACTION: <one of the actions above>\n")
	b.WriteString("PRIORITY: <one of the priorities above>\n")
	b.WriteString("REASONING: <one short sentence>\n")
	b.WriteString("SUGGESTED_RESPONSE: <draft body, recipient address, or empty>\n")

	return b.String()
}

var labelLine = regexp.MustCompile(`(?i)^\s*(ACTION|PRIORITY|REASONING|SUGGESTED_RESPONSE)\s*:\s*(.*)$`)

// parseResponse matches spec §4.7's parser rules: case-insensitive
// catalogue match, unknown actions collapse to no_action, missing
// labels default to reply/medium.
func parseResponse(raw string) classifierdomain.Classification {
	result := classifierdomain.Classification{Action: classifierdomain.ActionReply, Priority: classifierdomain.PriorityMedium}
	sawAction, sawPriority := false, false

	for _, line := range strings.Split(raw, "\n") {
		m := labelLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		label, value := strings.ToUpper(m[1]), strings.TrimSpace(m[2])
		switch label {
		case "ACTION":
			sawAction = true
			result.Action = matchAction(value)
		case "PRIORITY":
			sawPriority = true
			result.Priority = matchPriority(value)
		case "REASONING":
			result.Reasoning = value
		case "SUGGESTED_RESPONSE":
			result.SuggestedResponse = value
		}
	}
	if !sawAction {
		result.Action = classifierdomain.ActionReply
	}
	if !sawPriority {
		result.Priority = classifierdomain.PriorityMedium
	}
	return result
}

func matchAction(value string) classifierdomain.Action {
	lower := strings.ToLower(strings.TrimSpace(value))
	for _, a := range classifierdomain.ValidActions {
		if string(a) == lower {
			return a
		}
	}
	return classifierdomain.ActionNoAction
}

func matchPriority(value string) classifierdomain.Priority {
	lower := strings.ToLower(strings.TrimSpace(value))
	for _, p := range classifierdomain.ValidPriorities {
		if string(p) == lower {
			return p
		}
	}
	return classifierdomain.PriorityMedium
}

// ParseRule parses one stored rule string of the form
// `when email contains "<keyword>", perform "<action>" [to <recipient>]`
// into a structured Rule, skipping malformed entries.
func ParseRule(raw string) (classifierdomain.Rule, bool) {
	pattern := regexp.MustCompile(`(?i)when email contains\s+"([^"]*)",\s*perform\s+"([^"]*)"(?:\s+to\s+(\S+))?`)
	m := pattern.FindStringSubmatch(raw)
	if m == nil {
		return classifierdomain.Rule{}, false
	}
	return classifierdomain.Rule{Keyword: m[1], Action: m[2], Recipient: m[3]}, true
}

// BudgetFromLimit bounds the number of emails classified per sync pass
// (sync.email_processing.limit_per_sync, default 500).
func BudgetFromLimit(limit int) int {
	if limit <= 0 {
		return 500
	}
	return limit
}
