package model

import "time"

type Playlist struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Public        bool      `json:"public"`
	Collaborative bool      `json:"collaborative"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PlaylistEntry is one (playlist, track, position) membership row. For a
// playlist with N entries the positions are exactly 1..N, each once.
type PlaylistEntry struct {
	PlaylistID int64     `json:"playlist_id"`
	TrackID    int64     `json:"track_id"`
	Position   int       `json:"position"`
	AddedAt    time.Time `json:"added_at"`
}
