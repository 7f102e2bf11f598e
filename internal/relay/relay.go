// Package relay sequences the message-handling pipeline: dedupe,
// cooldowns, circuit breaking, history persistence, context assembly,
// and the model round trip. Events are processed one at a time; all
// in-memory state is owned here and guarded for concurrent use anyway.
package relay

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wxrelay/wxrelay/internal/bus"
	"github.com/wxrelay/wxrelay/internal/config"
	"github.com/wxrelay/wxrelay/internal/providers"
	"github.com/wxrelay/wxrelay/internal/ratelimit"
	"github.com/wxrelay/wxrelay/internal/store"
	"github.com/wxrelay/wxrelay/internal/store/replydb"
)

// Adapter is the outbound side of the chat platform.
type Adapter interface {
	SendText(ctx context.Context, session bus.Session, text string) error
}

// runtimeConfig pairs a config snapshot with its precompiled regex so
// hot reloads swap both atomically.
type runtimeConfig struct {
	cfg          *config.Config
	privateRegex *regexp.Regexp
}

// Relay owns the pipeline state. Rate-limit windows are fixed at
// construction; hot reloads affect trigger, persona, limits, vision and
// reply settings.
type Relay struct {
	rc      atomic.Pointer[runtimeConfig]
	store   *store.Store
	client  providers.Client
	adapter Adapter
	log     zerolog.Logger

	replies *replydb.DB // optional, best-effort

	dedupe          *ratelimit.DedupeCache
	sessionCooldown *ratelimit.CooldownManager
	userCooldown    *ratelimit.CooldownManager
	failures        *ratelimit.FailureTracker

	visionMu    sync.Mutex
	visionCache map[string]string // image sha256 -> generated reply
}

func New(cfg *config.Config, st *store.Store, client providers.Client, adapter Adapter, log zerolog.Logger) *Relay {
	r := &Relay{
		store:           st,
		client:          client,
		adapter:         adapter,
		log:             log.With().Str("component", "relay").Logger(),
		dedupe:          ratelimit.NewDedupeCache(time.Duration(cfg.Dedupe.WindowSeconds) * time.Second),
		sessionCooldown: ratelimit.NewCooldownManager(time.Duration(cfg.RateLimit.SessionCooldownSeconds) * time.Second),
		userCooldown:    ratelimit.NewCooldownManager(time.Duration(cfg.RateLimit.UserCooldownSeconds) * time.Second),
		failures:        ratelimit.NewFailureTracker(cfg.Failure.MaxConsecutiveFailures, time.Duration(cfg.Failure.CooldownSeconds)*time.Second),
		visionCache:     make(map[string]string),
	}
	r.ApplyConfig(cfg)
	return r
}

// SetReplyDB attaches the optional SQLite reply mirror.
func (r *Relay) SetReplyDB(db *replydb.DB) { r.replies = db }

// ApplyConfig swaps in a new config snapshot. The regex was validated
// at load time; a compile failure here leaves regex triggering off.
func (r *Relay) ApplyConfig(cfg *config.Config) {
	rc := &runtimeConfig{cfg: cfg}
	if cfg.Trigger.PrivateMode == "regex" && cfg.Trigger.PrivateRegex != "" {
		if re, err := regexp.Compile(cfg.Trigger.PrivateRegex); err == nil {
			rc.privateRegex = re
		} else {
			r.log.Error().Err(err).Msg("private trigger regex does not compile")
		}
	}
	r.rc.Store(rc)
}

// HandleMessage runs one inbound event through the full pipeline. The
// returned error is a storage failure (history or media write); all
// other failures are absorbed into the fallback-reply path.
func (r *Relay) HandleMessage(ctx context.Context, msg bus.InboundMessage) error {
	rc := r.rc.Load()
	cfg := rc.cfg

	if cfg.SelfUserID != "" && msg.SenderID == cfg.SelfUserID {
		r.log.Debug().Str("msg_id", msg.MessageID).Msg("skip self message")
		return nil
	}

	session, err := r.resolveSession(msg)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	uniqueKey := msg.MessageID
	if uniqueKey == "" {
		uniqueKey = hashContent(msg)
	}
	if r.dedupe.SeenRecently(uniqueKey) {
		r.log.Info().Str("key", uniqueKey).Msg("dedupe hit")
		return nil
	}

	if r.failures.IsBlocked(session.ID) {
		r.log.Warn().Str("session", session.ID).Msg("session blocked after repeated failures")
		return nil
	}

	shouldReply := r.shouldTrigger(rc, msg)
	r.log.Info().
		Str("scope", string(session.Scope)).
		Str("sender", msg.SenderName).
		Bool("trigger", shouldReply).
		Msg("message received")

	var imageMeta *store.ImageMeta
	if msg.Type == bus.TypeImage && len(msg.ImageBytes) > 0 && msg.ImageMime != "" {
		meta, err := r.store.SaveImage(session.Scope, session.ID, msg.ImageBytes, msg.ImageMime, msg.MessageID)
		if err != nil {
			return fmt.Errorf("save image: %w", err)
		}
		imageMeta = &meta
	}

	if err := r.appendInbound(msg, session, imageMeta); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if !shouldReply {
		return nil
	}

	if r.sessionCooldown.InCooldown(session.ID) {
		r.log.Info().Str("session", session.ID).Msg("session cooldown")
		return nil
	}
	if r.userCooldown.InCooldown(msg.SenderID) {
		r.log.Info().Str("sender", msg.SenderID).Msg("user cooldown")
		return nil
	}

	reply, err := r.generateReply(ctx, cfg, msg, session, imageMeta)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}

	if err := r.adapter.SendText(ctx, session, reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	if err := r.appendOutbound(session, reply); err != nil {
		return fmt.Errorf("append reply history: %w", err)
	}
	return nil
}

func (r *Relay) resolveSession(msg bus.InboundMessage) (bus.Session, error) {
	scope := msg.Scope()

	var key string
	switch {
	case msg.ConversationID != "":
		key = msg.ConversationID
	case msg.IsGroup && msg.GroupID != "":
		key = msg.GroupID
	case msg.IsGroup && msg.GroupName != "":
		key = msg.GroupName
	default:
		key = msg.SenderID
	}

	displayName := msg.SenderName
	if msg.IsGroup {
		displayName = msg.GroupName
	}

	id, err := r.store.ResolveSession(scope, key, displayName)
	if err != nil {
		return bus.Session{}, err
	}
	return bus.Session{Scope: scope, ID: id, Key: key, DisplayName: displayName}, nil
}

// hashContent derives a dedupe key for events without a message id.
func hashContent(msg bus.InboundMessage) string {
	ts := strconv.FormatFloat(msg.Timestamp, 'f', -1, 64)
	sum := sha1.Sum([]byte(msg.SenderID + ":" + msg.Content + ":" + ts))
	return hex.EncodeToString(sum[:])
}

func (r *Relay) appendInbound(msg bus.InboundMessage, session bus.Session, imageMeta *store.ImageMeta) error {
	return r.store.AppendHistory(session.Scope, session.ID, store.Record{
		Timestamp:  msg.Timestamp,
		Direction:  store.DirectionReceived,
		Sender:     msg.SenderName,
		Type:       msg.Type,
		Content:    msg.Content,
		MessageID:  msg.MessageID,
		SessionKey: session.Key,
		Image:      imageMeta,
	})
}

func (r *Relay) appendOutbound(session bus.Session, content string) error {
	return r.store.AppendHistory(session.Scope, session.ID, store.Record{
		Timestamp:  float64(time.Now().UnixMilli()) / 1000,
		Direction:  store.DirectionSent,
		Sender:     "bot",
		Type:       bus.TypeText,
		Content:    content,
		MessageID:  uuid.NewString(),
		SessionKey: session.Key,
	})
}
