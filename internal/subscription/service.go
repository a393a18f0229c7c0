// Package subscription owns the paid-plan state machine. Stored states are
// active and cancelled; expiry is derived from end_date at read time, so no
// background job ever rewrites rows. Activation is the one operation in the
// system that must create three rows or none.
package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cadenza-app/cadenza/internal/model"
	"github.com/cadenza-app/cadenza/internal/payment"
	"github.com/cadenza-app/cadenza/internal/store"
)

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrAlreadySubscribed    = errors.New("user already has an active subscription")
	ErrNoActiveSubscription = errors.New("user has no active subscription")
	ErrGracePeriodExpired   = errors.New("subscription can no longer be reactivated")
)

type Service struct {
	db      *sql.DB
	gateway payment.Gateway
}

func NewService(db *sql.DB, gateway payment.Gateway) *Service {
	return &Service{db: db, gateway: gateway}
}

const subscriptionCols = `id, user_id, plan_id, start_date, end_date, state`

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	err := scanner.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.StartDate, &sub.EndDate, &sub.State)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Activate creates the subscription, its user link and exactly one
// succeeded payment record in one transaction. The partial unique index on
// (user_id) WHERE state = 'active' is the authoritative guard; the
// precondition query here is advisory.
func (s *Service) Activate(ctx context.Context, userID, planID int64) (*model.Subscription, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var plan model.Plan
	err = tx.QueryRow(`SELECT id, name, price_cents, duration_months FROM plans WHERE id = ?`, planID).
		Scan(&plan.ID, &plan.Name, &plan.PriceCents, &plan.DurationMonths)
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	// A stored-active row whose end date already passed is expired to
	// every reader. Demote it here so it does not hold the unique index
	// hostage; this is the only write the derived state ever causes.
	if _, err := tx.Exec(
		`UPDATE subscriptions SET state = ? WHERE user_id = ? AND state = ? AND end_date <= ?`,
		model.SubscriptionCancelled, userID, model.SubscriptionActive, now,
	); err != nil {
		return nil, fmt.Errorf("demote expired subscription: %w", err)
	}

	var hasActive bool
	if err := tx.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = ? AND state = ? AND end_date > ?)`,
		userID, model.SubscriptionActive, now,
	).Scan(&hasActive); err != nil {
		return nil, fmt.Errorf("check active subscription: %w", err)
	}
	if hasActive {
		return nil, ErrAlreadySubscribed
	}

	end := now.AddDate(0, plan.DurationMonths, 0)
	result, err := tx.Exec(
		`INSERT INTO subscriptions (user_id, plan_id, start_date, end_date, state) VALUES (?, ?, ?, ?, ?)`,
		userID, planID, now, end, model.SubscriptionActive,
	)
	if store.IsUniqueViolation(err) {
		return nil, ErrAlreadySubscribed
	}
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	subID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO subscription_users (subscription_id, user_id) VALUES (?, ?)`,
		subID, userID,
	); err != nil {
		return nil, fmt.Errorf("insert subscription link: %w", err)
	}

	receipt, err := s.gateway.Charge(ctx, userID, plan.PriceCents, "plan "+plan.Name)
	if err != nil {
		return nil, fmt.Errorf("charge: %w", err)
	}
	status := model.PaymentSucceeded
	if !receipt.Succeeded {
		status = model.PaymentFailed
	}
	if _, err := tx.Exec(
		`INSERT INTO payment_transactions (user_id, subscription_id, amount_cents, occurred_at, status, reference, raw_payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, subID, plan.PriceCents, now, status, receipt.Reference, receipt.RawPayload,
	); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	if !receipt.Succeeded {
		// A failed charge aborts activation entirely; nothing of the
		// three rows survives.
		return nil, fmt.Errorf("ref %s: %w", receipt.Reference, payment.ErrChargeDeclined)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &model.Subscription{
		ID:        subID,
		UserID:    userID,
		PlanID:    planID,
		StartDate: now,
		EndDate:   end,
		State:     model.SubscriptionActive,
	}, nil
}

// Cancel revokes auto-continuation, not current access: the state flips to
// cancelled while end_date stays untouched, so the user keeps access until
// it passes.
func (s *Service) Cancel(ctx context.Context, userID int64) (*model.Subscription, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// A stored-active row whose end date passed is already expired;
	// cancelling it would be a no-op lie.
	row := tx.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ? AND state = ? AND end_date > ?`,
		userID, model.SubscriptionActive, now,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("get active subscription: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE subscriptions SET state = ? WHERE id = ?`,
		model.SubscriptionCancelled, sub.ID,
	); err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	sub.State = model.SubscriptionCancelled
	return sub, nil
}

// Reactivate flips a cancelled subscription back to active, free of charge,
// while its end date is still in the future. Past the end date the
// subscription is expired for good.
func (s *Service) Reactivate(ctx context.Context, userID int64) (*model.Subscription, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE user_id = ? AND state = ? AND end_date > ?
		 ORDER BY end_date DESC LIMIT 1`,
		userID, model.SubscriptionCancelled, now,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, ErrGracePeriodExpired
	}
	if err != nil {
		return nil, fmt.Errorf("get cancelled subscription: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE subscriptions SET state = ? WHERE id = ?`,
		model.SubscriptionActive, sub.ID,
	)
	if store.IsUniqueViolation(err) {
		return nil, ErrAlreadySubscribed
	}
	if err != nil {
		return nil, fmt.Errorf("reactivate subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	sub.State = model.SubscriptionActive
	return sub, nil
}

// Current returns the user's subscription that still grants access: active
// or cancelled-in-grace, with the end date in the future. Returns nil when
// there is none; expired rows are never surfaced regardless of stored
// state.
func (s *Service) Current(ctx context.Context, userID int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE user_id = ? AND end_date > ?
		 ORDER BY state = 'active' DESC, end_date DESC LIMIT 1`,
		userID, time.Now().UTC(),
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current subscription: %w", err)
	}
	return sub, nil
}

// HasPremium reports whether the user currently has a valid active
// subscription.
func (s *Service) HasPremium(ctx context.Context, userID int64) (bool, error) {
	var has bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = ? AND state = ? AND end_date > ?)`,
		userID, model.SubscriptionActive, time.Now().UTC(),
	).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("check premium: %w", err)
	}
	return has, nil
}

// Transactions returns the user's most recent payment records.
func (s *Service) Transactions(ctx context.Context, userID int64, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, subscription_id, amount_cents, occurred_at, status, reference, raw_payload
		 FROM payment_transactions WHERE user_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var txs []*model.PaymentTransaction
	for rows.Next() {
		var t model.PaymentTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.SubscriptionID, &t.AmountCents, &t.OccurredAt, &t.Status, &t.Reference, &t.RawPayload); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}
