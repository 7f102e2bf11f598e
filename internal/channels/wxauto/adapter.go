// Package wxauto adapts the wxauto HTTP bridge to the relay: it polls
// the bridge for raw WeChat events, normalizes them into
// bus.InboundMessage, and performs outbound sends. The bridge drives
// WeChat through UI automation, so outbound sends are paced with a rate
// limiter rather than fired back-to-back.
package wxauto

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/wxrelay/wxrelay/internal/bus"
)

// RawMessage is one event as the bridge reports it. Field names vary
// between bridge versions, so several carry fallbacks resolved in
// ParseRaw.
type RawMessage struct {
	MsgID          string  `json:"msg_id"`
	ID             string  `json:"id"`
	Timestamp      float64 `json:"timestamp"`
	SenderID       string  `json:"sender_id"`
	Sender         string  `json:"sender"`
	SenderName     string  `json:"sender_name"`
	Content        string  `json:"content"`
	Type           string  `json:"type"`
	IsGroup        bool    `json:"is_group"`
	GroupID        string  `json:"group_id"`
	GroupName      string  `json:"group_name"`
	IsAt           bool    `json:"is_at"`
	ConversationID string  `json:"conversation_id"`
	ImageBase64    string  `json:"image_base64"`
	ImageMime      string  `json:"image_mime"`
}

// Adapter is the HTTP client side of the bridge.
type Adapter struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Config holds the adapter construction parameters.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	SendRatePerSecond float64
}

func New(cfg Config, log zerolog.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.SendRatePerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Adapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log.With().Str("component", "wxauto").Logger(),
	}
}

// PollMessages fetches the raw events accumulated since the last poll.
func (a *Adapter) PollMessages(ctx context.Context) ([]RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/messages/listen", nil)
	if err != nil {
		return nil, fmt.Errorf("build poll request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("poll messages: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed struct {
		Messages []RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}
	return parsed.Messages, nil
}

// ParseRaw normalizes a raw bridge event into the common inbound shape.
func (a *Adapter) ParseRaw(raw RawMessage) bus.InboundMessage {
	id := raw.MsgID
	if id == "" {
		id = raw.ID
	}
	senderID := raw.SenderID
	if senderID == "" {
		senderID = raw.Sender
	}
	senderName := raw.SenderName
	if senderName == "" {
		senderName = raw.Sender
	}
	ts := raw.Timestamp
	if ts == 0 {
		ts = float64(time.Now().Unix())
	}
	msgType := bus.MessageType(raw.Type)
	if msgType == "" {
		msgType = bus.TypeText
	}

	var imageBytes []byte
	if raw.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(raw.ImageBase64)
		if err != nil {
			a.log.Warn().Str("msg_id", id).Err(err).Msg("dropping undecodable image payload")
		} else {
			imageBytes = data
		}
	}

	return bus.InboundMessage{
		MessageID:      id,
		Timestamp:      ts,
		SenderID:       senderID,
		SenderName:     senderName,
		Content:        raw.Content,
		Type:           msgType,
		IsGroup:        raw.IsGroup,
		GroupID:        raw.GroupID,
		GroupName:      raw.GroupName,
		IsAt:           raw.IsAt,
		ConversationID: raw.ConversationID,
		ImageBytes:     imageBytes,
		ImageMime:      raw.ImageMime,
	}
}

// SendText delivers a reply to the session's chat window. Sends are
// rate-limited; the wait respects ctx cancellation.
func (a *Adapter) SendText(ctx context.Context, session bus.Session, text string) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send pacing: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"target": session.DisplayName,
		"text":   text,
	})
	if err != nil {
		return fmt.Errorf("encode send request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send text: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
