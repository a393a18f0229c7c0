package model

import "time"

type Album struct {
	ID          int64      `json:"id"`
	ArtistID    int64      `json:"artist_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ReleasedOn  *time.Time `json:"released_on"`
	CoverPath   *string    `json:"cover_path"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Track struct {
	ID           int64     `json:"id"`
	AlbumID      int64     `json:"album_id"`
	ArtistID     int64     `json:"artist_id"`
	Title        string    `json:"title"`
	DurationSecs int       `json:"duration_secs"`
	Genre        *string   `json:"genre"`
	Explicit     bool      `json:"explicit"`
	PlayCount    int64     `json:"play_count"`
	FilePath     *string   `json:"file_path"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListenEvent is one row of a user's listening history.
type ListenEvent struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	TrackID    int64     `json:"track_id"`
	ListenedAt time.Time `json:"listened_at"`
}

// Upload records a media file handed to the blob-storage collaborator.
type Upload struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	TrackID      *int64    `json:"track_id"`
	Kind         string    `json:"kind"`
	Path         string    `json:"path"`
	OriginalName string    `json:"original_name"`
	SizeBytes    int64     `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	UploadKindAudio = "audio"
	UploadKindImage = "image"
)
