package domain

import "time"

type Reaction struct {
	User  UserID `json:"user"`
	Emoji string `json:"emoji"`
}

// ReplyRef is a denormalized reference to the message being replied to.
type ReplyRef struct {
	ID       MessageID `json:"id"`
	Username string    `json:"username"`
	Content  string    `json:"content"`
}

// Message is one persisted chat message. It is soft-deleted only: Delete
// blanks it but the record survives until room teardown.
type Message struct {
	ID        MessageID  `json:"id"`
	Room      RoomID     `json:"roomId"`
	Sender    UserID     `json:"sender"`
	Content   string     `json:"content"`
	ReplyTo   *ReplyRef  `json:"replyTo,omitempty"`
	ReadBy    []UserID   `json:"readBy"`
	Reactions []Reaction `json:"reactions"`
	Edited    bool       `json:"edited"`
	Deleted   bool       `json:"deleted"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (m *Message) ReadByUser(id UserID) bool {
	for _, u := range m.ReadBy {
		if u == id {
			return true
		}
	}
	return false
}

// MarkRead adds the user to the read set. Reports whether the set changed.
func (m *Message) MarkRead(id UserID) bool {
	if m.ReadByUser(id) {
		return false
	}
	m.ReadBy = append(m.ReadBy, id)
	return true
}

// ToggleReaction adds the (user, emoji) pair if absent and removes it if
// present. Toggling twice is a round trip back to the original set.
func (m *Message) ToggleReaction(user UserID, emoji string) {
	for i, r := range m.Reactions {
		if r.User == user && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return
		}
	}
	m.Reactions = append(m.Reactions, Reaction{User: user, Emoji: emoji})
}

// Blank empties the message in place for a soft delete.
func (m *Message) Blank() {
	m.Content = ""
	m.Reactions = nil
	m.Deleted = true
}
