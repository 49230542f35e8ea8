package ledger

import (
	"context"
	"errors"
	"time"

	"fundplane/pkg/db/option"
	"fundplane/pkg/db/pagination"
	"fundplane/pkg/errutil"
	"fundplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrInsufficientFunds is the expected rejection for debits that exceed the
// withdrawable balance. Callers translate it into a result value, not an
// HTTP error.
var ErrInsufficientFunds = errors.New("insufficient balance")

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	ledger  repository.Repository[LedgerEntry]
	balance repository.Repository[Balance]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		ledger:  repository.ProvideStore[LedgerEntry](p.DB),
		balance: repository.ProvideStore[Balance](p.DB),
	}
}

type BalanceSnapshot struct {
	Balance       int64     `json:"balance"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

func (s *Service) GetBalance(ctx context.Context, userID string) (*BalanceSnapshot, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	}

	row, err := s.balance.FindOne(ctx, &Balance{UserID: userID})
	if err != nil {
		zap.L().With(opts...).Error("failed to query balance", zap.Error(err))
		return nil, err
	}

	if row == nil {
		return &BalanceSnapshot{Balance: 0}, nil
	}

	return &BalanceSnapshot{
		Balance:       row.Balance,
		LastUpdatedAt: row.UpdatedAt,
	}, nil
}

// LockBalance takes the FOR UPDATE lock on the user's balance row, creating
// a zero row first if the user has never moved money. Every money-moving
// transaction calls this before reading anything it will decide on.
func (s *Service) LockBalance(ctx context.Context, tx *gorm.DB, userID string) (*Balance, error) {
	balanceTx := s.balance.WithTrx(tx)

	row, err := balanceTx.FindOne(ctx, &Balance{UserID: userID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}

	if row == nil {
		row = &Balance{
			ID:        s.node.Generate().String(),
			UserID:    userID,
			Balance:   0,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		// The unique index on user_id turns a create race into a
		// duplicate-key error, which the caller's retry loop absorbs.
		if err := balanceTx.Create(ctx, row); err != nil {
			return nil, err
		}
	}

	return row, nil
}

type MovementParams struct {
	UserID      string
	Amount      int64
	ReferenceID string
	Description string
	Metadata    datatypes.JSON
}

// CreditTx appends a CREDIT entry and bumps the balance inside the caller's
// transaction. The caller must already hold the balance lock via LockBalance.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, bal *Balance, p MovementParams) (*LedgerEntry, error) {
	if p.Amount <= 0 {
		return nil, errutil.BadRequest("amount must be > 0 for CREDIT", nil)
	}

	entry, err := s.appendEntry(ctx, tx, bal, EntryTypeCredit, p)
	if err != nil {
		return nil, err
	}

	if err := s.balance.WithTrx(tx).Update(ctx, bal.ID, map[string]any{
		"balance":    gorm.Expr("balance + ?", p.Amount),
		"updated_at": time.Now(),
	}); err != nil {
		return nil, err
	}

	return entry, nil
}

// DebitTx appends a DEBIT entry and lowers the balance inside the caller's
// transaction. Returns ErrInsufficientFunds without writing when the locked
// balance cannot cover the amount.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, bal *Balance, p MovementParams) (*LedgerEntry, error) {
	if p.Amount <= 0 {
		return nil, errutil.BadRequest("amount must be > 0 for DEBIT", nil)
	}

	if bal.Balance < p.Amount {
		return nil, ErrInsufficientFunds
	}

	entry, err := s.appendEntry(ctx, tx, bal, EntryTypeDebit, p)
	if err != nil {
		return nil, err
	}

	if err := s.balance.WithTrx(tx).Update(ctx, bal.ID, map[string]any{
		"balance":    gorm.Expr("balance - ?", p.Amount),
		"updated_at": time.Now(),
	}); err != nil {
		return nil, err
	}

	return entry, nil
}

// Credit runs a stand-alone credit in its own transaction. The signup
// attribution process and admin adjustments come through here.
func (s *Service) Credit(ctx context.Context, p MovementParams) (*LedgerEntry, error) {
	if exist, _ := s.ledger.FindOne(ctx, &LedgerEntry{ReferenceID: p.ReferenceID, UserID: p.UserID}); exist != nil {
		zap.L().Warn("reference_id already exists", zap.String("reference_id", p.ReferenceID))
		return nil, errutil.Conflict("reference_id already exists", nil)
	}

	var entry *LedgerEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		bal, err := s.LockBalance(ctx, tx, p.UserID)
		if err != nil {
			return err
		}

		entry, err = s.CreditTx(ctx, tx, bal, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (s *Service) appendEntry(ctx context.Context, tx *gorm.DB, bal *Balance, entryType string, p MovementParams) (*LedgerEntry, error) {
	previousHash := "GENESIS"
	last, err := s.lastEntry(ctx, tx, p.UserID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		previousHash = last.Hash
	}

	transactionID, err := GenerateTransactionID()
	if err != nil {
		zap.L().Error("failed to generate transaction id", zap.Error(err))
		return nil, err
	}

	entry := NewLedgerEntry(EntryParams{
		EntryID:       s.node.Generate().String(),
		UserID:        p.UserID,
		Type:          entryType,
		Amount:        p.Amount,
		TransactionID: transactionID,
		ReferenceID:   p.ReferenceID,
		Description:   p.Description,
		PreviousHash:  previousHash,
		Metadata:      p.Metadata,
	})
	entry.CreatedAt = time.Now()
	entry.Hash = entry.GenerateHash()

	if err := s.ledger.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// lastEntry picks the chain head. Snowflake ids are monotonic, so the id
// tiebreaker keeps the order stable when entries share a timestamp.
func (s *Service) lastEntry(ctx context.Context, tx *gorm.DB, userID string) (*LedgerEntry, error) {
	return s.ledger.WithTrx(tx).FindOne(ctx, &LedgerEntry{UserID: userID},
		option.WithOrder("created_at DESC, id DESC"),
		option.WithLockingUpdate(),
	)
}

func (s *Service) ListEntries(ctx context.Context, userID string, page pagination.Pagination) ([]*LedgerEntry, *pagination.PageInfo, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	tx := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(page.Limit + 1)

	if page.Cursor != "" {
		cursor, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", err)
		}
		tx = tx.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var entries []*LedgerEntry
	if err := tx.Find(&entries).Error; err != nil {
		zap.L().Error("failed to query ledger entries", zap.Error(err))
		return nil, nil, err
	}

	entries, pageInfo := pagination.BuildCursorPageInfo(entries, page.Limit, func(e *LedgerEntry) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
			ID:        e.ID,
		})
		return c
	})

	return entries, pageInfo, nil
}

// VerifyChain walks the user's entries oldest-first and recomputes the hash
// chain. A mismatch means the ledger was tampered with or corrupted; it is
// reported, never repaired.
func (s *Service) VerifyChain(ctx context.Context, userID string) (bool, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	entries, err := s.ledger.Find(ctx, &LedgerEntry{UserID: userID},
		option.WithOrder("created_at ASC, id ASC"),
	)
	if err != nil {
		zap.L().Error("failed to query ledger entries", zap.Error(err))
		return false, err
	}

	lastHash := "GENESIS"
	for _, entry := range entries {
		if entry.Hash != entry.GenerateHash() || entry.PreviousHash != lastHash {
			zap.L().Error("ledger chain verification failed",
				zap.String("user_id", userID),
				zap.String("entry_id", entry.ID),
			)
			return false, nil
		}
		lastHash = entry.Hash
	}

	return true, nil
}
