package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundplane/pkg/config"
	"fundplane/pkg/db/option"
	"fundplane/pkg/errutil"
	"fundplane/pkg/repository"
	"fundplane/pkg/sequence"
	"fundplane/services/account"
	"fundplane/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator

	ledger   *ledger.Service
	accounts *account.Service

	requests repository.Repository[WithdrawalRequest]
	bankInfo repository.Repository[BankInfo]

	feeRate float64
	minimum int64
}

type ServiceParams struct {
	fx.In
	Config   *config.Config
	DB       *gorm.DB
	Node     *snowflake.Node
	Sequence sequence.Generator
	Ledger   *ledger.Service
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	feeRate := p.Config.Funds.WithdrawalFeeRate
	if feeRate <= 0 {
		feeRate = 0.10
	}
	minimum := p.Config.Funds.WithdrawalMinimum
	if minimum <= 0 {
		minimum = 1000
	}

	return &Service{
		db:   p.DB,
		node: p.Node,
		seq:  p.Sequence,

		ledger:   p.Ledger,
		accounts: p.Accounts,

		requests: repository.ProvideStore[WithdrawalRequest](p.DB),
		bankInfo: repository.ProvideStore[BankInfo](p.DB),

		feeRate: feeRate,
		minimum: minimum,
	}
}

type BankInfoParams struct {
	BankName      string `json:"bank_name" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	AccountName   string `json:"account_name" binding:"required"`
}

func (s *Service) SetBankInfo(ctx context.Context, userID string, p BankInfoParams) (*BankInfo, error) {
	if err := s.accounts.Exists(ctx, userID); err != nil {
		return nil, err
	}

	existing, err := s.bankInfo.FindOne(ctx, &BankInfo{UserID: userID})
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if err := s.bankInfo.Update(ctx, existing.ID, map[string]any{
			"bank_name":      p.BankName,
			"account_number": p.AccountNumber,
			"account_name":   p.AccountName,
			"updated_at":     time.Now(),
		}); err != nil {
			return nil, err
		}
		return s.bankInfo.FindOne(ctx, &BankInfo{UserID: userID})
	}

	info := &BankInfo{
		ID:            s.node.Generate().String(),
		UserID:        userID,
		BankName:      p.BankName,
		AccountNumber: p.AccountNumber,
		AccountName:   p.AccountName,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := s.bankInfo.Create(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Service) GetBankInfo(ctx context.Context, userID string) (*BankInfo, error) {
	info, err := s.bankInfo.FindOne(ctx, &BankInfo{UserID: userID})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errutil.NotFound("bank info not set", nil)
	}
	return info, nil
}

// Fee returns the platform fee for a withdrawal amount.
func (s *Service) Fee(amount int64) int64 {
	return int64(float64(amount) * s.feeRate)
}

// Request validates the withdrawal pin and the rules the client used to only
// hint at, debits amount + fee through the ledger, and writes a pending
// request in the same transaction.
func (s *Service) Request(ctx context.Context, userID string, amount int64, pin string) (*WithdrawalRequest, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if amount < s.minimum {
		return nil, errutil.ValidationFailed(
			fmt.Sprintf("minimum withdrawal is %d", s.minimum), nil)
	}

	if err := s.accounts.VerifyWithdrawalPin(ctx, userID, pin); err != nil {
		return nil, err
	}

	info, err := s.bankInfo.FindOne(ctx, &BankInfo{UserID: userID})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errutil.UnprocessableEntity("bank info must be set before withdrawing", nil)
	}

	code, err := s.seq.NextWithdrawalCode(ctx)
	if err != nil {
		zap.L().Error("failed to generate withdrawal code", zap.Error(err))
		return nil, err
	}

	fee := s.Fee(amount)
	request := &WithdrawalRequest{
		ID:          s.node.Generate().String(),
		UserID:      userID,
		Amount:      amount,
		Fee:         fee,
		Status:      StatusPending,
		Code:        code,
		RequestedAt: time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		bal, err := s.ledger.LockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}

		_, err = s.ledger.DebitTx(ctx, tx, bal, ledger.MovementParams{
			UserID:      userID,
			Amount:      amount + fee,
			ReferenceID: request.ID,
			Description: fmt.Sprintf("withdrawal %s (fee %d)", code, fee),
		})
		if err != nil {
			return err
		}

		return s.requests.WithTrx(tx).Create(ctx, request)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, errutil.UnprocessableEntity("insufficient balance for amount plus fee", nil)
		}
		return nil, err
	}

	return request, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*WithdrawalRequest, error) {
	return s.requests.Find(ctx, &WithdrawalRequest{UserID: userID})
}

// Approve marks a pending request as paid out. The balance was already
// debited when the request was created.
func (s *Service) Approve(ctx context.Context, requestID string) (*WithdrawalRequest, error) {
	return s.process(ctx, requestID, StatusApproved, false)
}

// Reject closes a pending request and refunds amount + fee through the
// ledger in the same transaction.
func (s *Service) Reject(ctx context.Context, requestID string) (*WithdrawalRequest, error) {
	return s.process(ctx, requestID, StatusRejected, true)
}

func (s *Service) process(ctx context.Context, requestID, status string, refund bool) (*WithdrawalRequest, error) {
	var request *WithdrawalRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = s.requests.WithTrx(tx).FindOne(ctx,
			&WithdrawalRequest{ID: requestID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if request == nil {
			return errutil.NotFound("withdrawal request not found", nil)
		}
		if request.Status != StatusPending {
			return errutil.Conflict("withdrawal request already processed", nil)
		}

		// Guarded transition: only one processor wins the pending row, so a
		// rejection can never refund twice.
		now := time.Now()
		res := tx.WithContext(ctx).Model(&WithdrawalRequest{}).
			Where("id = ? AND status = ?", request.ID, StatusPending).
			Updates(map[string]any{
				"status":       status,
				"processed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("withdrawal request already processed", nil)
		}
		request.Status = status
		request.ProcessedAt = &now

		if refund {
			bal, err := s.ledger.LockBalance(ctx, tx, request.UserID)
			if err != nil {
				return err
			}
			_, err = s.ledger.CreditTx(ctx, tx, bal, ledger.MovementParams{
				UserID:      request.UserID,
				Amount:      request.Amount + request.Fee,
				ReferenceID: fmt.Sprintf("%s-refund", request.ID),
				Description: fmt.Sprintf("withdrawal %s rejected, refund", request.Code),
			})
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return request, nil
}
