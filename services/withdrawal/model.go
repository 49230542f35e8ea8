package withdrawal

import "time"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// WithdrawalRequest is one payout request. The amount plus fee is debited
// from the balance when the request is created; rejecting refunds it.
type WithdrawalRequest struct {
	ID          string     `gorm:"column:id;primaryKey"`
	UserID      string     `gorm:"column:user_id;index"`
	Amount      int64      `gorm:"column:amount"`
	Fee         int64      `gorm:"column:fee"`
	Status      string     `gorm:"column:status;index"`
	Code        string     `gorm:"column:code"`
	RequestedAt time.Time  `gorm:"column:requested_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at"`
}

func (WithdrawalRequest) TableName() string { return "withdrawal_requests" }

// BankInfo is the destination account for payouts, one row per user.
type BankInfo struct {
	ID            string    `gorm:"column:id;primaryKey"`
	UserID        string    `gorm:"column:user_id;uniqueIndex"`
	BankName      string    `gorm:"column:bank_name"`
	AccountNumber string    `gorm:"column:account_number"`
	AccountName   string    `gorm:"column:account_name"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (BankInfo) TableName() string { return "bank_info" }
