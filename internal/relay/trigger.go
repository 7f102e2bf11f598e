package relay

import (
	"strings"

	"github.com/wxrelay/wxrelay/internal/bus"
)

// shouldTrigger decides whether an inbound event warrants a reply.
// Group chats reply only to direct mentions, optionally further gated on
// keywords. Private chats follow the configured mode. Non-triggering
// events are still recorded in history by the caller.
func (r *Relay) shouldTrigger(rc *runtimeConfig, msg bus.InboundMessage) bool {
	trig := rc.cfg.Trigger

	if msg.IsGroup {
		if trig.GroupMode == "mention_keyword" {
			return msg.IsAt && matchKeywords(msg.Content, trig.GroupKeywords)
		}
		return msg.IsAt
	}

	switch trig.PrivateMode {
	case "always":
		return true
	case "keyword":
		return matchKeywords(msg.Content, trig.PrivateKeywords)
	case "regex":
		return rc.privateRegex != nil && rc.privateRegex.MatchString(msg.Content)
	default:
		return false
	}
}

// matchKeywords is a case-insensitive substring match over keywords.
func matchKeywords(content string, keywords []string) bool {
	if content == "" || len(keywords) == 0 {
		return false
	}
	lowered := strings.ToLower(content)
	for _, kw := range keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
