package activityfund

import (
	"time"
)

// ReferralRecord is one attributed signup. Append-only; a referred user is
// counted at most once per (referrer, level).
type ReferralRecord struct {
	ID         string    `gorm:"column:id;primaryKey"`
	ReferrerID string    `gorm:"column:referrer_id;index:idx_referrals_referrer_level;uniqueIndex:idx_referrals_attribution"`
	ReferredID string    `gorm:"column:referred_id;uniqueIndex:idx_referrals_attribution"`
	Level      int       `gorm:"column:level;index:idx_referrals_referrer_level;uniqueIndex:idx_referrals_attribution"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (ReferralRecord) TableName() string { return "referrals" }

// ClaimRecord is one admitted activity fund claim. Append-only; the unique
// index on (user_id, level, sequence_number) is the storage-level backstop
// against double admission.
type ClaimRecord struct {
	ID                string    `gorm:"column:id;primaryKey"`
	UserID            string    `gorm:"column:user_id;uniqueIndex:idx_claims_user_level_seq"`
	Level             int       `gorm:"column:level;uniqueIndex:idx_claims_user_level_seq"`
	SequenceNumber    int64     `gorm:"column:sequence_number;uniqueIndex:idx_claims_user_level_seq"`
	RequiredReferrals int64     `gorm:"column:required_referrals"`
	BaseAmount        int64     `gorm:"column:base_amount"`
	PayoutAmount      int64     `gorm:"column:payout_amount"`
	ClaimCode         string    `gorm:"column:claim_code"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

func (ClaimRecord) TableName() string { return "activity_fund_claims" }

// Tier is one row of the fixed activity fund table.
type Tier struct {
	Level      int   `json:"level"`
	BaseAmount int64 `json:"base_amount"`
}

// Tiers is the fixed 10-level activity fund table. Levels outside this table
// are rejected before any transaction opens.
var Tiers = []Tier{
	{Level: 1, BaseAmount: 3000},
	{Level: 2, BaseAmount: 5000},
	{Level: 3, BaseAmount: 10000},
	{Level: 4, BaseAmount: 15000},
	{Level: 5, BaseAmount: 20000},
	{Level: 6, BaseAmount: 30000},
	{Level: 7, BaseAmount: 40000},
	{Level: 8, BaseAmount: 50000},
	{Level: 9, BaseAmount: 80000},
	{Level: 10, BaseAmount: 100000},
}

func TierByLevel(level int) (Tier, bool) {
	for _, t := range Tiers {
		if t.Level == level {
			return t, true
		}
	}
	return Tier{}, false
}
