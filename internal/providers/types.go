package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Message is one role-tagged entry in a model request.
// Content holds plain text; Parts is set instead for multi-part
// (vision) messages and takes precedence when non-nil.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL carries an image as a data URL for vision-capable models.
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image_url content part embedding the image bytes
// as a base64 data URL.
func ImagePart(data []byte, mime string) ContentPart {
	b64 := base64.StdEncoding.EncodeToString(data)
	return ContentPart{
		Type:     "image_url",
		ImageURL: &ImageURL{URL: fmt.Sprintf("data:%s;base64,%s", mime, b64)},
	}
}

// MarshalJSON emits the OpenAI wire shape: content is a plain string for
// text messages and an array of typed parts for multi-part messages.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Parts != nil {
		return json.Marshal(struct {
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{m.Role, m.Parts})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{m.Role, m.Content})
}

// CallOptions overrides per-call request parameters. Zero values fall
// back to the client's configured defaults.
type CallOptions struct {
	MaxTokens   int
	Temperature *float64
	NoStream    bool // force a non-streaming request
}

// Client is the model backend the relay talks to. A call either returns
// the full assistant text or an error; there is no retry policy.
type Client interface {
	Chat(ctx context.Context, msgs []Message, opts CallOptions) (string, error)
}
