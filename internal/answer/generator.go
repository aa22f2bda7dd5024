// Package answer generates grounded replies with the configured chat model.
// It owns the prompts docqa sends to the model: the question-answering
// prompt that wraps retrieved context, and the summary prompt used for
// video transcripts at ingest time.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sony/gobreaker"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/logging"
)

// SystemPrompt instructs the model to answer from the supplied context.
const SystemPrompt = "You are a helpful assistant. Use the provided context to answer questions accurately. " +
	"If you're not sure about something, say so. Return your answer in well structured, and formatted markdown."

// SummaryPrompt instructs the model to summarize a transcript or document.
const SummaryPrompt = "You summarize transcripts and documents. Write a concise summary in well structured " +
	"markdown: a one-sentence overview followed by the key points as a bulleted list. " +
	"Only use information present in the text."

// ErrUnavailable is returned while the circuit breaker is open after repeated
// model failures.
var ErrUnavailable = errors.New("answer: chat model temporarily unavailable")

// ErrEmptyResponse is returned when the model replies with no content.
var ErrEmptyResponse = errors.New("answer: chat model returned an empty response")

// Config holds the Generator settings. Zero values defer to the chat
// model's own configuration.
type Config struct {
	// Temperature overrides the model temperature per call when non-nil.
	Temperature *float32

	// MaxTokens overrides the reply token limit per call when positive.
	MaxTokens int

	// MaxInputTokens bounds the estimated prompt size. Longer summary inputs
	// are truncated; longer answer prompts are logged and sent as is.
	// Defaults to budget.DefaultMaxInputTokens.
	MaxInputTokens int

	// BreakerFailures is the number of consecutive model failures that opens
	// the circuit breaker. Defaults to 5.
	BreakerFailures uint32

	// BreakerCooldown is how long the breaker stays open before letting a
	// probe request through. Defaults to 30s.
	BreakerCooldown time.Duration

	// Metrics records completion counters. Optional.
	Metrics *Metrics
}

// Generator turns prompts into model replies.
type Generator struct {
	// chat is the underlying chat model.
	chat model.BaseChatModel

	// opts are the per-call model options derived from Config.
	opts []model.Option

	// maxInput is the resolved prompt budget in estimated tokens.
	maxInput int

	// breaker stops calling a failing model for a cooldown period.
	breaker *gobreaker.CircuitBreaker

	// metrics is optional.
	metrics *Metrics
}

// New constructs a Generator around chat.
func New(chat model.BaseChatModel, cfg *Config) (*Generator, error) {
	if chat == nil {
		return nil, fmt.Errorf("answer: chat model must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	var opts []model.Option
	if cfg.Temperature != nil {
		opts = append(opts, model.WithTemperature(*cfg.Temperature))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(cfg.MaxTokens))
	}

	maxInput := cfg.MaxInputTokens
	if maxInput <= 0 {
		maxInput = budget.DefaultMaxInputTokens
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	metrics := cfg.Metrics
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "chat-model",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller giving up is not a model fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("answer: circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.breakerState(to)
		},
	})

	return &Generator{
		chat:     chat,
		opts:     opts,
		maxInput: maxInput,
		breaker:  breaker,
		metrics:  metrics,
	}, nil
}

// Complete sends a system and a user message and returns the reply text.
func (g *Generator) Complete(ctx context.Context, system, user string) (string, error) {
	return g.complete(ctx, "complete", system, user)
}

// Answer asks question against the retrieved context using SystemPrompt.
func (g *Generator) Answer(ctx context.Context, question, contextText string) (string, error) {
	return g.complete(ctx, "answer", SystemPrompt, UserPrompt(contextText, question))
}

// Summarize returns a markdown summary of text, truncating the input to the
// prompt budget first.
func (g *Generator) Summarize(ctx context.Context, text string) (string, error) {
	limit := g.maxInput - budget.EstimateMessages([]*schema.Message{
		schema.SystemMessage(SummaryPrompt),
		schema.UserMessage(""),
	})
	if trimmed, cut := budget.Truncate(text, limit); cut {
		logging.FromContext(ctx).Warn("answer: summary input truncated to fit the prompt budget",
			slog.Int("estimated_tokens", budget.Estimate(text)),
			slog.Int("budget", limit),
		)
		text = trimmed
	}
	return g.complete(ctx, "summarize", SummaryPrompt, text)
}

// UserPrompt formats the user turn of a grounded question.
func UserPrompt(contextText, question string) string {
	return fmt.Sprintf("Context: %s\n\nQuestion: %s", contextText, question)
}

func (g *Generator) complete(ctx context.Context, op, system, user string) (string, error) {
	log := logging.FromContext(ctx)
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	if est := budget.EstimateMessages(msgs); est > g.maxInput {
		log.Warn("answer: prompt exceeds input budget",
			slog.String("op", op),
			slog.Int("estimated_tokens", est),
			slog.Int("budget", g.maxInput),
		)
	}

	start := time.Now()
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.chat.Generate(ctx, msgs, g.opts...)
	})
	elapsed := time.Since(start)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		g.metrics.completion(op, "unavailable", elapsed)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		g.metrics.completion(op, "error", elapsed)
		return "", fmt.Errorf("answer: %s: %w", op, err)
	}

	msg, _ := out.(*schema.Message)
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		g.metrics.completion(op, "empty", elapsed)
		return "", ErrEmptyResponse
	}

	g.metrics.completion(op, "ok", elapsed)
	if usage := msg.ResponseMeta; usage != nil && usage.Usage != nil {
		log.Debug("answer: completion",
			slog.String("op", op),
			slog.Int("prompt_tokens", usage.Usage.PromptTokens),
			slog.Int("completion_tokens", usage.Usage.CompletionTokens),
			slog.Duration("duration", elapsed),
		)
	}
	return msg.Content, nil
}
