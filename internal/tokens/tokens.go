// Package tokens provides the approximate, character-based token
// arithmetic used for context budgeting. One token is estimated as four
// characters of text; structured messages count only their text parts.
package tokens

import (
	"unicode/utf8"

	"github.com/wxrelay/wxrelay/internal/providers"
)

// Estimate returns the approximate token count of text: one token per
// four characters, rounded up, minimum 1 for non-empty text, 0 for
// empty. Characters, not bytes: CJK text would otherwise estimate
// three times too high.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := (utf8.RuneCountInString(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// MessageTokens estimates one message. For multi-part messages only
// text-typed parts contribute.
func MessageTokens(msg providers.Message) int {
	if msg.Parts != nil {
		total := 0
		for _, part := range msg.Parts {
			if part.Type == "text" {
				total += Estimate(part.Text)
			}
		}
		return total
	}
	return Estimate(msg.Content)
}

// MessagesTokens sums per-message estimates.
func MessagesTokens(msgs []providers.Message) int {
	total := 0
	for _, msg := range msgs {
		total += MessageTokens(msg)
	}
	return total
}

// Truncate clips text to at most maxTokens estimated tokens by keeping
// the first maxTokens*4 characters. Text already within the cap is
// returned as-is.
func Truncate(text string, maxTokens int) string {
	if Estimate(text) <= maxTokens && maxTokens >= 0 {
		return text
	}
	maxChars := maxTokens * 4
	end := 0
	for n := 0; n < maxChars && end < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return text[:end]
}
