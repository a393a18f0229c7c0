package model

import "time"

type Plan struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	DurationMonths int    `json:"duration_months"`
}

// Stored subscription states. Expiry is never stored: a subscription with
// EndDate in the past is expired no matter what state the row carries.
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

type Subscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	PlanID    int64     `json:"plan_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	State     string    `json:"state"`
}

// Expired reports the derived expiry state at the given instant.
func (s *Subscription) Expired(now time.Time) bool {
	return !s.EndDate.After(now)
}

// Payment statuses.
const (
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

// PaymentTransaction is created exactly once per successful activation and
// is immutable thereafter.
type PaymentTransaction struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	SubscriptionID int64     `json:"subscription_id"`
	AmountCents    int64     `json:"amount_cents"`
	OccurredAt     time.Time `json:"occurred_at"`
	Status         string    `json:"status"`
	Reference      string    `json:"reference"`
	RawPayload     string    `json:"raw_payload"`
}

// CatalogSnapshot records one encrypted snapshot shipped to blob storage.
type CatalogSnapshot struct {
	ID          int64      `json:"id"`
	Filename    string     `json:"filename"`
	ObjectKey   string     `json:"object_key"`
	Status      string     `json:"status"`
	SizeBytes   int64      `json:"size_bytes"`
	Error       string     `json:"error"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Snapshot statuses.
const (
	SnapshotPending   = "pending"
	SnapshotUploading = "uploading"
	SnapshotComplete  = "complete"
	SnapshotFailed    = "failed"
)
