package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yegors/agent-desktop/internal/storage/sqlite"
	"github.com/yegors/agent-desktop/pkg/logger"
)

// completer abstracts the chat-completion call so tests can fake the
// upstream model.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// openaiCompleter is the production completer backed by the OpenAI API
type openaiCompleter struct {
	client      openai.Client
	model       string
	temperature float64
}

func (o *openaiCompleter) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Temperature: openai.Float(o.temperature),
		MaxTokens:   openai.Int(300),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Client is the stateless gateway to the generative-text capability.
// Every public method returns a well-shaped result: upstream failures and
// unparseable payloads degrade to fixed fallbacks, never to broken output.
type Client struct {
	comp   completer
	config Config
	logger *logger.Logger
}

// NewClient creates a new gateway client
func NewClient(config Config, log *logger.Logger) *Client {
	return &Client{
		comp: &openaiCompleter{
			client:      openai.NewClient(option.WithAPIKey(config.APIKey)),
			model:       config.Model,
			temperature: config.Temperature,
		},
		config: config,
		logger: log.Named("assist"),
	}
}

// callUpstream runs one completion with the configured timeout and retry
// policy.
func (c *Client) callUpstream(ctx context.Context, system, user string) (string, error) {
	timeout := time.Duration(c.config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result string
	operation := func() error {
		raw, err := c.comp.complete(callCtx, system, user)
		if err != nil {
			return err
		}
		result = raw
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.config.MaxRetries)),
		callCtx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return result, nil
}

// Suggestions returns exactly three short suggestions for the agent. The
// returned error is non-nil only for upstream failures; even then the
// suggestions are the well-shaped fallback so callers can surface them.
func (c *Client) Suggestions(ctx context.Context, turns []sqlite.TranscriptTurn, ticket Ticket) ([]string, error) {
	prompt, err := renderTemplate(suggestionsTemplate, promptData{
		Transcript: formatTurns(turns, 6),
		Ticket:     ticket,
	})
	if err != nil {
		c.logger.Error("Failed to render suggestions prompt", logger.Error(err))
		return FallbackSuggestions(), nil
	}

	raw, err := c.callUpstream(ctx, systemPrompt, prompt)
	if err != nil {
		c.logger.Warn("Suggestions upstream call failed, using fallback", logger.Error(err))
		return FallbackSuggestions(), err
	}

	suggestions, err := parseSuggestions(raw)
	if err != nil {
		c.logger.Warn("Failed to parse suggestions, using fallback",
			logger.String("raw", raw),
			logger.Error(err))
		return FallbackSuggestions(), nil
	}
	return suggestions, nil
}

// WrapUpSummary returns the structured wrap-up for the call. Error semantics
// match Suggestions: non-nil only on upstream failure, result always usable.
func (c *Client) WrapUpSummary(ctx context.Context, turns []sqlite.TranscriptTurn, ticket Ticket, playbook Playbook) (WrapUp, error) {
	prompt, err := renderTemplate(summaryTemplate, promptData{
		Transcript:     formatTurns(turns, 8),
		Ticket:         ticket,
		CompletedSteps: completedSteps(playbook),
	})
	if err != nil {
		c.logger.Error("Failed to render summary prompt", logger.Error(err))
		return FallbackWrapUp(), nil
	}

	raw, err := c.callUpstream(ctx, systemPrompt, prompt)
	if err != nil {
		c.logger.Warn("Summary upstream call failed, using fallback", logger.Error(err))
		return FallbackWrapUp(), err
	}

	wrapUp, err := parseWrapUp(raw)
	if err != nil {
		c.logger.Warn("Failed to parse wrap-up, using fallback",
			logger.String("raw", raw),
			logger.Error(err))
		return FallbackWrapUp(), nil
	}
	return wrapUp, nil
}

// AgentReply generates the agent's next spoken line from the transcript.
// Unlike the other calls it propagates failure: the orchestrator owns the
// scripted fallback replies.
func (c *Client) AgentReply(ctx context.Context, turns []sqlite.TranscriptTurn) (string, error) {
	prompt, err := renderTemplate(replyTemplate, promptData{
		Transcript: formatTurns(turns, len(turns)),
	})
	if err != nil {
		return "", err
	}

	raw, err := c.callUpstream(ctx, systemPrompt, prompt)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(stripFences(raw))
	if reply == "" {
		return "", fmt.Errorf("empty reply from upstream")
	}
	return reply, nil
}

// stripFences removes Markdown code-fence markers the model sometimes wraps
// around its JSON despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// parseSuggestions parses the strict suggestions payload. Arrays longer than
// three are truncated; shorter or malformed payloads are rejected wholesale
// so the caller substitutes the fallback.
func parseSuggestions(raw string) ([]string, error) {
	var payload suggestionsPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return nil, fmt.Errorf("invalid suggestions JSON: %w", err)
	}
	if len(payload.Suggestions) < suggestionCount {
		return nil, fmt.Errorf("expected %d suggestions, got %d", suggestionCount, len(payload.Suggestions))
	}
	return payload.Suggestions[:suggestionCount], nil
}

// parseWrapUp parses the strict wrap-up payload
func parseWrapUp(raw string) (WrapUp, error) {
	var wrapUp WrapUp
	if err := json.Unmarshal([]byte(stripFences(raw)), &wrapUp); err != nil {
		return WrapUp{}, fmt.Errorf("invalid wrap-up JSON: %w", err)
	}
	if wrapUp.Summary == "" {
		return WrapUp{}, fmt.Errorf("missing summary in wrap-up payload")
	}
	return wrapUp, nil
}
