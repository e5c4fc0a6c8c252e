// ABOUTME: Normalized inbound chatbot message model
// ABOUTME: Decouples the rest of the connector from SDK callback payloads

package dingtalk

// Conversation types reported by chatbot callbacks.
const (
	ConversationTypePrivate = "1"
	ConversationTypeGroup   = "2"
)

// Message is a normalized inbound chatbot message.
type Message struct {
	MsgID            string
	Text             string
	ConversationID   string
	ConversationType string
	SenderStaffID    string
	SenderNick       string
	SessionWebhook   string
}

// IsGroup reports whether the message came from a group conversation.
func (m Message) IsGroup() bool {
	return m.ConversationType == ConversationTypeGroup
}
