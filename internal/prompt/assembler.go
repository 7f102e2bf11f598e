// Package prompt turns a session's history plus the new inbound message
// into a bounded list of role-tagged messages that fit a token budget.
package prompt

import (
	"errors"

	"github.com/wxrelay/wxrelay/internal/providers"
	"github.com/wxrelay/wxrelay/internal/tokens"
)

// ErrBudgetExhausted signals that the computed budget left no room for
// any prompt at all. The caller answers with its fallback reply and must
// not call the model.
var ErrBudgetExhausted = errors.New("token budget exhausted")

// Build assembles [system] + [kept history] + [latest] within budget.
//
// The latest message is first clipped to maxSingle tokens, then further
// to budget minus the system tokens if system+latest alone would
// overflow. History is walked newest-first and included greedily until
// the first record that would overflow; older records are dropped, never
// reordered, so the kept history is always a contiguous recent suffix.
func Build(system providers.Message, history []providers.Message, latest providers.Message, budget, maxSingle int) ([]providers.Message, error) {
	if budget <= 0 {
		return nil, ErrBudgetExhausted
	}

	systemTokens := tokens.MessageTokens(system)
	if tokens.MessageTokens(latest) > maxSingle {
		latest = truncateMessage(latest, maxSingle)
	}
	if systemTokens+tokens.MessageTokens(latest) > budget {
		latest = truncateMessage(latest, budget-systemTokens)
	}

	remaining := budget - systemTokens - tokens.MessageTokens(latest)
	kept := make([]providers.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		t := tokens.MessageTokens(history[i])
		if t > remaining {
			break
		}
		kept = append(kept, history[i])
		remaining -= t
	}

	out := make([]providers.Message, 0, len(kept)+2)
	out = append(out, system)
	for i := len(kept) - 1; i >= 0; i-- { // restore chronological order
		out = append(out, kept[i])
	}
	out = append(out, latest)
	return out, nil
}

// truncateMessage clips a message's text to maxTokens. For multi-part
// messages only the text parts are clipped; image parts pass through.
func truncateMessage(msg providers.Message, maxTokens int) providers.Message {
	if msg.Parts != nil {
		parts := make([]providers.ContentPart, len(msg.Parts))
		copy(parts, msg.Parts)
		for i, part := range parts {
			if part.Type == "text" {
				parts[i].Text = tokens.Truncate(part.Text, maxTokens)
			}
		}
		msg.Parts = parts
		return msg
	}
	msg.Content = tokens.Truncate(msg.Content, maxTokens)
	return msg
}
