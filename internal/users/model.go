package users

import "time"

// User is a chat partner the assistant has talked to.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
