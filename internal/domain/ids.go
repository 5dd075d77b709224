// Package domain contains entities without logic, just meta-data.
package domain

// Distinct identifier types per entity kind. Keeping them separate
// prevents a user id from ever standing in for a connection or room id.
type (
	UserID    string
	ConnID    string
	RoomID    string
	ServerID  string
	ChannelID string
	MessageID string
)
