package account

import "time"

// Account is the platform user as this layer sees it: an opaque id issued by
// the identity provider plus the few columns the procedures need. Signup and
// authentication happen elsewhere.
type Account struct {
	ID                string    `gorm:"column:id;primaryKey"`
	Username          string    `gorm:"column:username"`
	Email             string    `gorm:"column:email"`
	WithdrawalPinHash string    `gorm:"column:withdrawal_pin_hash"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (Account) TableName() string { return "users" }
