package model

import "time"

// FollowEdge is a directed user-to-user follow relation.
type FollowEdge struct {
	FollowerID int64     `json:"follower_id"`
	FollowedID int64     `json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// LikeEdge is a (user, target) like relation; the target kind is implied by
// the table the edge lives in.
type LikeEdge struct {
	UserID    int64     `json:"user_id"`
	TargetID  int64     `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Like-history actions.
const (
	LikeActionLike   = "like"
	LikeActionUnlike = "unlike"
)

// LikeEvent is one append-only like-history row. It records a transition,
// not current state.
type LikeEvent struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	TargetKind string    `json:"target_kind"`
	TargetID   int64     `json:"target_id"`
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}
