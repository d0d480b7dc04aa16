package models

import "time"

// Spaces are fixed partitions used purely to keep unrelated conversation
// lists apart in the UI.
const (
	SpaceGeneral = 0
	SpaceWork    = 1
	SpaceScratch = 2
)

// DefaultTitle is the placeholder assigned at creation. It is replaced
// exactly once, by the first non-empty user message.
const DefaultTitle = "New conversation"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID        string    `json:"id"`
	Space     int       `json:"space"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // user or assistant
	Content        string    `json:"content"`
	Tokens         int       `json:"tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

func ValidSpace(space int) bool {
	switch space {
	case SpaceGeneral, SpaceWork, SpaceScratch:
		return true
	}
	return false
}
