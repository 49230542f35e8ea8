package welfare

import "time"

// WelfarePackage is a purchasable welfare plan: pay Amount up front, receive
// Amount * Multiplier spread over DurationDays daily payouts.
type WelfarePackage struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	Level        int       `gorm:"column:level;index"`
	Amount       int64     `gorm:"column:amount"`
	Multiplier   float64   `gorm:"column:multiplier"`
	DurationDays int       `gorm:"column:duration_days"`
	Active       bool      `gorm:"column:active"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (WelfarePackage) TableName() string { return "welfare_packages" }

// WelfareActivation tracks one running plan. Package terms are denormalized
// at activation time so later package edits never change a running plan.
type WelfareActivation struct {
	ID           string     `gorm:"column:id;primaryKey"`
	UserID       string     `gorm:"column:user_id;uniqueIndex:idx_welfare_user_package"`
	PackageID    string     `gorm:"column:package_id;uniqueIndex:idx_welfare_user_package"`
	Level        int        `gorm:"column:level"`
	Amount       int64      `gorm:"column:amount"`
	Multiplier   float64    `gorm:"column:multiplier"`
	DurationDays int        `gorm:"column:duration_days"`
	StartedAt    time.Time  `gorm:"column:started_at"`
	PayoutsMade  int        `gorm:"column:payouts_made"`
	LastPayoutAt *time.Time `gorm:"column:last_payout_at"`
	Completed    bool       `gorm:"column:completed;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (WelfareActivation) TableName() string { return "welfare_activations" }

// PayoutPerDay is the daily accrual for this activation.
func (a *WelfareActivation) PayoutPerDay() int64 {
	if a.DurationDays <= 0 {
		return 0
	}
	return int64(float64(a.Amount) * a.Multiplier / float64(a.DurationDays))
}

// PayoutsDue reports how many daily payouts have accrued but not been paid,
// capped at the plan duration. Calling it twice with the same state returns
// the same answer, which is what makes accrual idempotent.
func (a *WelfareActivation) PayoutsDue(now time.Time) int {
	elapsed := int(now.Sub(a.StartedAt).Hours() / 24)
	if elapsed > a.DurationDays {
		elapsed = a.DurationDays
	}
	due := elapsed - a.PayoutsMade
	if due < 0 {
		return 0
	}
	return due
}
