package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	EntryTypeCredit = "CREDIT"
	EntryTypeDebit  = "DEBIT"
)

// Balance is the user's withdrawable balance, one row per user. It is the
// row every money-moving transaction locks first.
type Balance struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;uniqueIndex"`
	Balance   int64     `gorm:"column:balance"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Balance) TableName() string { return "balances" }

// LedgerEntry is an append-only movement record. Entries form a per-user
// hash chain; VerifyChain recomputes it.
type LedgerEntry struct {
	ID            string         `gorm:"column:id;primaryKey"`
	CreatedAt     time.Time      `gorm:"column:created_at;index"`
	UserID        string         `gorm:"column:user_id;index"`
	Type          string         `gorm:"column:type"`
	Amount        int64          `gorm:"column:amount"`
	TransactionID string         `gorm:"column:transaction_id"`
	ReferenceID   string         `gorm:"column:reference_id"`
	Description   string         `gorm:"column:description"`
	PreviousHash  string         `gorm:"column:previous_hash"`
	Hash          string         `gorm:"column:hash"`
	Metadata      datatypes.JSON `gorm:"column:metadata"`
}

func (LedgerEntry) TableName() string { return "transactions" }

type EntryParams struct {
	EntryID       string
	UserID        string
	Type          string
	Amount        int64
	TransactionID string
	ReferenceID   string
	Description   string
	PreviousHash  string
	Metadata      datatypes.JSON
}

func NewLedgerEntry(p EntryParams) *LedgerEntry {
	return &LedgerEntry{
		ID:            p.EntryID,
		UserID:        p.UserID,
		Type:          p.Type,
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
		ReferenceID:   p.ReferenceID,
		Description:   p.Description,
		PreviousHash:  p.PreviousHash,
		Metadata:      p.Metadata,
	}
}

func (m *LedgerEntry) HashFields() map[string]string {
	return map[string]string{
		"id":             m.ID,
		"user_id":        m.UserID,
		"type":           m.Type,
		"amount":         fmt.Sprintf("%d", m.Amount),
		"transaction_id": m.TransactionID,
		"reference_id":   m.ReferenceID,
		"description":    m.Description,
		"created_at":     m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":  m.PreviousHash,
	}
}

func (m *LedgerEntry) GenerateHash() string {
	fields := m.HashFields()
	var keys []string
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	joined := strings.Join(parts, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}

func GenerateTransactionID() (string, error) {
	datePart := time.Now().Format("20060102")

	r := make([]byte, 3) // 3 bytes = 6 hex chars
	_, err := rand.Read(r)
	if err != nil {
		return "", err
	}
	randomPart := strings.ToUpper(fmt.Sprintf("%x", r))

	return fmt.Sprintf("%s-%s", datePart, randomPart), nil
}
