package entities

import "time"

// Message roles accepted in a conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is an immutable snapshot of a conversation. A longer exchange is
// saved as a new version rather than by mutating an older one.
type Transcript struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	TenantID       string    `json:"clientId"`
	Messages       []Message `json:"messages"`
	Timestamp      time.Time `json:"timestamp"`
}

// LastUserMessage returns the content of the most recent user message, or "".
func LastUserMessage(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// ChatReply is what the chat surface returns to the widget.
type ChatReply struct {
	Message  string `json:"message"`
	TenantID string `json:"clientId"`
	RAGUsed  bool   `json:"ragUsed"`
	Fallback bool   `json:"-"`
}
