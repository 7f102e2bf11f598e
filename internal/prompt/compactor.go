package prompt

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wxrelay/wxrelay/internal/providers"
	"github.com/wxrelay/wxrelay/internal/tokens"
)

const summaryMaxTokens = 512

// Compactor enforces a hard context ceiling for continuous conversations
// against OpenAI-compatible endpoints. When the assembled prompt plus
// the fixed output reservation would exceed the ceiling, the whole kept
// history is collapsed into a single assistant-role summary produced by
// one extra low-temperature model call. Summarization failures are
// non-fatal; if even the summary does not fit, history is dropped
// entirely.
type Compactor struct {
	Client          providers.Client
	SummaryPrompt   string
	MaxOutputTokens int // fixed reservation for the model's reply
	ContextCeiling  int
	Log             zerolog.Logger
}

// Assemble returns [system] + history-or-summary + [latest], keeping the
// estimated total (including the output reservation) under the ceiling
// when it can.
func (c *Compactor) Assemble(ctx context.Context, system providers.Message, history []providers.Message, latest providers.Message) []providers.Message {
	finish := func(middle []providers.Message) []providers.Message {
		out := make([]providers.Message, 0, len(middle)+2)
		out = append(out, system)
		out = append(out, middle...)
		out = append(out, latest)
		return out
	}

	if len(history) == 0 {
		return finish(nil)
	}

	total := tokens.MessagesTokens(append([]providers.Message{system}, history...)) +
		tokens.MessageTokens(latest) + c.MaxOutputTokens
	if total <= c.ContextCeiling {
		return finish(history)
	}

	summary, ok := c.summarize(ctx, history)
	if !ok {
		// Proceed without compaction rather than failing the turn.
		return finish(history)
	}

	summaryMsg := providers.Message{Role: "assistant", Content: summary}
	compact := tokens.MessagesTokens([]providers.Message{system, summaryMsg}) +
		tokens.MessageTokens(latest) + c.MaxOutputTokens
	if compact > c.ContextCeiling {
		c.Log.Warn().Int("tokens", compact).Msg("summary still over context ceiling, dropping history")
		return finish(nil)
	}
	return finish([]providers.Message{summaryMsg})
}

// summarize issues the compaction call. Any error or empty content is
// reported as not-ok; the caller treats the summary as absent.
func (c *Compactor) summarize(ctx context.Context, history []providers.Message) (string, bool) {
	msgs := make([]providers.Message, 0, len(history)+1)
	msgs = append(msgs, providers.Message{Role: "system", Content: c.SummaryPrompt})
	msgs = append(msgs, history...)

	maxTokens := summaryMaxTokens
	if c.MaxOutputTokens > 0 && c.MaxOutputTokens < maxTokens {
		maxTokens = c.MaxOutputTokens
	}
	temp := 0.2
	out, err := c.Client.Chat(ctx, msgs, providers.CallOptions{
		MaxTokens:   maxTokens,
		Temperature: &temp,
		NoStream:    true,
	})
	if err != nil {
		c.Log.Warn().Err(err).Msg("history summarization failed")
		return "", false
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", false
	}
	return out, true
}
