package fixedfund

import "time"

// FixedFund is a purchasable fixed investment product. Yield fields are
// carried as data for the client; this layer only moves the principal.
type FixedFund struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name"`
	Level        int       `gorm:"column:level;index"`
	Amount       int64     `gorm:"column:amount"`
	YieldRate    float64   `gorm:"column:yield_rate"`
	DurationDays int       `gorm:"column:duration_days"`
	Active       bool      `gorm:"column:active"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (FixedFund) TableName() string { return "fixed_funds" }

// FixedFundActivation is one purchase. A user activates a given fund at most
// once; the level is denormalized for the welfare eligibility check.
type FixedFundActivation struct {
	ID          string    `gorm:"column:id;primaryKey"`
	UserID      string    `gorm:"column:user_id;uniqueIndex:idx_activations_user_fund"`
	FixedFundID string    `gorm:"column:fixed_fund_id;uniqueIndex:idx_activations_user_fund"`
	Level       int       `gorm:"column:level;index"`
	Amount      int64     `gorm:"column:amount"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (FixedFundActivation) TableName() string { return "fixed_fund_activations" }
