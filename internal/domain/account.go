package domain

import "time"

// StartingCredits is the grant every newly provisioned account receives.
const StartingCredits = 30

type Account struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// UsageRecord is one immutable entry in an account's usage history.
// Delta is positive when credits were consumed and negative when credits
// were restored by a grant or refund.
type UsageRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Delta       int64     `json:"delta"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
