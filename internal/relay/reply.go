package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wxrelay/wxrelay/internal/bus"
	"github.com/wxrelay/wxrelay/internal/config"
	"github.com/wxrelay/wxrelay/internal/prompt"
	"github.com/wxrelay/wxrelay/internal/providers"
	"github.com/wxrelay/wxrelay/internal/store"
	"github.com/wxrelay/wxrelay/internal/tokens"
)

const defaultImagePrompt = "请描述这张图片。"

// generateReply produces the outbound text for a triggered event, or ""
// when no reply should be sent. Model and budget failures resolve to the
// configured fallback reply; only history read failures propagate.
func (r *Relay) generateReply(ctx context.Context, cfg *config.Config, msg bus.InboundMessage, session bus.Session, imageMeta *store.ImageMeta) (string, error) {
	if fixed := fixedReplyForScope(cfg, session.Scope); fixed != "" {
		return fixed, nil
	}

	if msg.Type == bus.TypeImage && !r.shouldProcessImage(cfg, msg) {
		r.log.Info().Str("msg_id", msg.MessageID).Msg("image ignored by vision config")
		return "", nil
	}

	responseTokens := cfg.Limits.MaxOutputTokens(session.Scope, cfg.API.MaxOutputTokens)
	budget := cfg.Limits.TokenBudget - responseTokens
	if budget <= 0 {
		r.log.Warn().Int("budget", budget).Msg("token budget exhausted before assembly")
		return cfg.Failure.FallbackReply, nil
	}

	// Re-answering a known image costs nothing: reuse the cached reply,
	// clipped to the caller's current output cap.
	if imageMeta != nil {
		if cached, ok := r.cachedVisionReply(imageMeta.SHA256); ok {
			r.log.Info().Str("sha256", imageMeta.SHA256).Msg("vision cache hit")
			return tokens.Truncate(cached, responseTokens), nil
		}
	}

	history, err := r.store.LoadHistory(session.Scope, session.ID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	historyMsgs := historyToMessages(history, msg.MessageID)

	system := providers.Message{Role: "system", Content: cfg.Persona.PromptForScope(session.Scope)}
	latest := buildLatestMessage(msg)

	msgs, err := prompt.Build(system, historyMsgs, latest, budget, cfg.Limits.MaxSingleMessageTokens)
	if err != nil {
		r.log.Warn().Err(err).Msg("context assembly aborted")
		return cfg.Failure.FallbackReply, nil
	}

	if cfg.API.ContinuousConversation {
		compactor := &prompt.Compactor{
			Client:          r.client,
			SummaryPrompt:   cfg.API.SummaryPrompt,
			MaxOutputTokens: cfg.API.MaxOutputTokens,
			ContextCeiling:  cfg.API.MaxContextTokens,
			Log:             r.log,
		}
		// msgs carries the clipped form of the latest message; reusing
		// the raw one here would undo the budget walk.
		kept := msgs[1 : len(msgs)-1]
		msgs = compactor.Assemble(ctx, system, kept, msgs[len(msgs)-1])
	}

	callCtx := ctx
	if cfg.API.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.API.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	out, err := r.client.Chat(callCtx, msgs, providers.CallOptions{})
	if err != nil {
		r.log.Error().Err(err).Str("session", session.ID).Msg("model call failed")
		r.failures.RegisterFailure(session.ID)
		return cfg.Failure.FallbackReply, nil
	}
	r.failures.RegisterSuccess(session.ID)

	reply := strings.TrimSpace(out)
	if reply == "" {
		return "", nil
	}
	if imageMeta != nil {
		r.storeVisionReply(imageMeta.SHA256, reply)
	}
	reply = tokens.Truncate(reply, responseTokens)

	if r.replies != nil {
		if err := r.replies.RecordReply(ctx, session.ID, msg.MessageID, cfg.API.Model, msg.Content, reply); err != nil {
			r.log.Warn().Err(err).Msg("reply mirror write failed")
		}
	}
	return reply, nil
}

func fixedReplyForScope(cfg *config.Config, scope bus.Scope) string {
	if scope == bus.ScopeGroup {
		return cfg.Reply.GroupFixedReply
	}
	return cfg.Reply.PrivateFixedReply
}

func (r *Relay) shouldProcessImage(cfg *config.Config, msg bus.InboundMessage) bool {
	if msg.IsGroup {
		return cfg.Vision.EnableGroup && msg.IsAt
	}
	return cfg.Vision.EnablePrivate
}

func (r *Relay) cachedVisionReply(sha string) (string, bool) {
	r.visionMu.Lock()
	defer r.visionMu.Unlock()
	reply, ok := r.visionCache[sha]
	return reply, ok
}

func (r *Relay) storeVisionReply(sha, reply string) {
	r.visionMu.Lock()
	defer r.visionMu.Unlock()
	r.visionCache[sha] = reply
}

// historyToMessages converts persisted records into role-tagged
// messages. Records matching excludeID are dropped: the inbound event
// was already appended before reply generation and must not appear
// twice. Image records render as a short hash placeholder instead of
// raw bytes.
func historyToMessages(history []store.Record, excludeID string) []providers.Message {
	msgs := make([]providers.Message, 0, len(history))
	for _, rec := range history {
		if excludeID != "" && rec.MessageID == excludeID {
			continue
		}
		role := "user"
		if rec.Direction == store.DirectionSent {
			role = "assistant"
		}
		var content string
		if rec.Type == bus.TypeImage {
			sha := ""
			if rec.Image != nil {
				sha = rec.Image.SHA256
			}
			content = fmt.Sprintf("[图片] hash=%s", sha)
		} else {
			content = rec.Content
		}
		if role == "user" && rec.Sender != "" {
			content = rec.Sender + ": " + content
		}
		msgs = append(msgs, providers.Message{Role: role, Content: content})
	}
	return msgs
}

// buildLatestMessage shapes the new inbound event for the model: plain
// text, or a multi-part message carrying the image as a data URL.
func buildLatestMessage(msg bus.InboundMessage) providers.Message {
	if msg.Type == bus.TypeImage && len(msg.ImageBytes) > 0 && msg.ImageMime != "" {
		text := msg.Content
		if text == "" {
			text = defaultImagePrompt
		}
		data, mime := shrinkImage(msg.ImageBytes, msg.ImageMime)
		return providers.Message{
			Role: "user",
			Parts: []providers.ContentPart{
				providers.TextPart(text),
				providers.ImagePart(data, mime),
			},
		}
	}
	return providers.Message{Role: "user", Content: msg.Content}
}
