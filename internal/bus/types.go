package bus

// Scope classifies a conversation as private (one counterpart) or group.
type Scope string

const (
	ScopePrivate Scope = "private"
	ScopeGroup   Scope = "group"
)

// MessageType distinguishes the payload kinds the relay understands.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
)

// InboundMessage is a normalized chat event received from the wxauto bridge.
type InboundMessage struct {
	MessageID      string      `json:"message_id"`
	Timestamp      float64     `json:"timestamp"` // source-platform clock, may skew
	SenderID       string      `json:"sender_id"`
	SenderName     string      `json:"sender_name"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	IsGroup        bool        `json:"is_group"`
	GroupID        string      `json:"group_id,omitempty"`
	GroupName      string      `json:"group_name,omitempty"`
	IsAt           bool        `json:"is_at"`
	ConversationID string      `json:"conversation_id,omitempty"`
	ImageBytes     []byte      `json:"-"`
	ImageMime      string      `json:"image_mime,omitempty"`
}

// Scope returns the conversation scope for the message.
func (m InboundMessage) Scope() Scope {
	if m.IsGroup {
		return ScopeGroup
	}
	return ScopePrivate
}

// Session identifies a durable conversational context resolved from an
// inbound message. DisplayName is fixed at session creation and is the
// send target on the wxauto side.
type Session struct {
	Scope       Scope  `json:"scope"`
	ID          string `json:"session_id"`
	Key         string `json:"session_key"`
	DisplayName string `json:"display_name"`
}

// OutboundMessage is a reply to be delivered through the adapter.
type OutboundMessage struct {
	Session Session `json:"session"`
	Content string  `json:"content"`
}
