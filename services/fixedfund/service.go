package fixedfund

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundplane/pkg/errutil"
	"fundplane/pkg/repository"
	"fundplane/services/account"
	"fundplane/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	ledger   *ledger.Service
	accounts *account.Service

	funds       repository.Repository[FixedFund]
	activations repository.Repository[FixedFundActivation]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Ledger   *ledger.Service
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		ledger:   p.Ledger,
		accounts: p.Accounts,

		funds:       repository.ProvideStore[FixedFund](p.DB),
		activations: repository.ProvideStore[FixedFundActivation](p.DB),
	}
}

type CreateFundParams struct {
	Name         string  `json:"name" binding:"required"`
	Level        int     `json:"level" binding:"required"`
	Amount       int64   `json:"amount" binding:"required"`
	YieldRate    float64 `json:"yield_rate"`
	DurationDays int     `json:"duration_days"`
}

func (s *Service) CreateFund(ctx context.Context, p CreateFundParams) (*FixedFund, error) {
	if p.Amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be > 0", nil)
	}

	fund := &FixedFund{
		ID:           s.node.Generate().String(),
		Name:         p.Name,
		Level:        p.Level,
		Amount:       p.Amount,
		YieldRate:    p.YieldRate,
		DurationDays: p.DurationDays,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if err := s.funds.Create(ctx, fund); err != nil {
		return nil, err
	}
	return fund, nil
}

func (s *Service) List(ctx context.Context) ([]*FixedFund, error) {
	return s.funds.Find(ctx, &FixedFund{Active: true})
}

func (s *Service) ListActivations(ctx context.Context, userID string) ([]*FixedFundActivation, error) {
	return s.activations.Find(ctx, &FixedFundActivation{UserID: userID})
}

// HasActivationAtLevel reports whether the user bought any fixed fund at the
// level. The welfare module gates activation on it.
func (s *Service) HasActivationAtLevel(ctx context.Context, userID string, level int) (bool, error) {
	count, err := s.activations.Count(ctx, &FixedFundActivation{UserID: userID, Level: level})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Activate debits the fund amount and writes the activation row in one
// transaction. The client used to deduct and insert in two calls; here a
// failed insert rolls the debit back.
func (s *Service) Activate(ctx context.Context, userID, fundID string) (*FixedFundActivation, error) {
	if err := s.accounts.Exists(ctx, userID); err != nil {
		return nil, err
	}

	fund, err := s.funds.FindOne(ctx, &FixedFund{ID: fundID})
	if err != nil {
		return nil, err
	}
	if fund == nil || !fund.Active {
		return nil, errutil.NotFound("fixed fund not found", nil)
	}

	existing, err := s.activations.FindOne(ctx, &FixedFundActivation{UserID: userID, FixedFundID: fundID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("fixed fund already activated", nil)
	}

	activation := &FixedFundActivation{
		ID:          s.node.Generate().String(),
		UserID:      userID,
		FixedFundID: fund.ID,
		Level:       fund.Level,
		Amount:      fund.Amount,
		CreatedAt:   time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		bal, err := s.ledger.LockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}

		_, err = s.ledger.DebitTx(ctx, tx, bal, ledger.MovementParams{
			UserID:      userID,
			Amount:      fund.Amount,
			ReferenceID: activation.ID,
			Description: fmt.Sprintf("fixed fund activation: %s", fund.Name),
		})
		if err != nil {
			return err
		}

		return s.activations.WithTrx(tx).Create(ctx, activation)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, errutil.UnprocessableEntity("insufficient balance for fixed fund", nil)
		}
		if isDuplicateKey(err) {
			return nil, errutil.Conflict("fixed fund already activated", nil)
		}
		zap.L().Error("fixed fund activation failed",
			zap.String("user_id", userID),
			zap.String("fund_id", fundID),
			zap.Error(err),
		)
		return nil, err
	}

	return activation, nil
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
