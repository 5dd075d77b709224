package domain

// DmRoom is a direct-message room between a fixed set of users.
type DmRoom struct {
	ID    RoomID   `json:"id"`
	Users []UserID `json:"users"`
}

func (r *DmRoom) HasUser(id UserID) bool {
	for _, u := range r.Users {
		if u == id {
			return true
		}
	}
	return false
}

type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

type Channel struct {
	ID   ChannelID   `json:"id"`
	Name string      `json:"name"`
	Type ChannelType `json:"type"`
}

// Server is a named community with an owner, a member list and channels.
type Server struct {
	ID       ServerID  `json:"id"`
	Name     string    `json:"name"`
	Owner    UserID    `json:"owner"`
	Members  []UserID  `json:"members"`
	Channels []Channel `json:"channels"`
}

// HasMember reports membership; the owner always counts as a member.
func (s *Server) HasMember(id UserID) bool {
	if s.Owner == id {
		return true
	}
	for _, m := range s.Members {
		if m == id {
			return true
		}
	}
	return false
}

func (s *Server) Channel(id ChannelID) (Channel, bool) {
	for _, ch := range s.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return Channel{}, false
}
