package model

import "time"

// Roles mirror the external identity service's role claims.
const (
	RoleListener = "listener"
	RoleArtist   = "artist"
	RoleAdmin    = "admin"
)

// User is a directory mirror of an account owned by the external identity
// provider. Cadenza never stores credentials; rows exist so foreign keys
// have something to point at.
type User struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
