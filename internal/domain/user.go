// Package domain contains entity without logic, just meta-data
package domain

type UserID string

// User is the stable identity behind a connection. A user may reconnect
// many times; each connection gets a fresh PeerID, the UserID never changes.
type User struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	RoomID RoomID `json:"roomId"`
	Admin  bool   `json:"admin"`
	SiteNo string `json:"siteNo"`
}
