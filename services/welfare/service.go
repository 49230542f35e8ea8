package welfare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundplane/pkg/errutil"
	"fundplane/pkg/repository"
	"fundplane/pkg/sequence"
	"fundplane/pkg/task"
	"fundplane/services/account"
	"fundplane/services/fixedfund"
	"fundplane/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	ledger     *ledger.Service
	accounts   *account.Service
	fixedFunds *fixedfund.Service
	enqueuer   task.Enqueuer
	seq        sequence.Generator

	packages    repository.Repository[WelfarePackage]
	activations repository.Repository[WelfareActivation]
}

type ServiceParams struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Ledger     *ledger.Service
	Accounts   *account.Service
	FixedFunds *fixedfund.Service
	Enqueuer   task.Enqueuer      `optional:"true"`
	Sequence   sequence.Generator `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		ledger:     p.Ledger,
		accounts:   p.Accounts,
		fixedFunds: p.FixedFunds,
		enqueuer:   p.Enqueuer,
		seq:        p.Sequence,

		packages:    repository.ProvideStore[WelfarePackage](p.DB),
		activations: repository.ProvideStore[WelfareActivation](p.DB),
	}
}

type CreatePackageParams struct {
	Name         string  `json:"name" binding:"required"`
	Level        int     `json:"level" binding:"required"`
	Amount       int64   `json:"amount" binding:"required"`
	Multiplier   float64 `json:"multiplier" binding:"required"`
	DurationDays int     `json:"duration_days" binding:"required"`
}

func (s *Service) CreatePackage(ctx context.Context, p CreatePackageParams) (*WelfarePackage, error) {
	if p.Amount <= 0 || p.Multiplier <= 0 || p.DurationDays <= 0 {
		return nil, errutil.ValidationFailed("amount, multiplier and duration_days must be > 0", nil)
	}

	pkg := &WelfarePackage{
		ID:           s.node.Generate().String(),
		Name:         p.Name,
		Level:        p.Level,
		Amount:       p.Amount,
		Multiplier:   p.Multiplier,
		DurationDays: p.DurationDays,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, err
	}
	return pkg, nil
}

func (s *Service) ListPackages(ctx context.Context) ([]*WelfarePackage, error) {
	return s.packages.Find(ctx, &WelfarePackage{Active: true})
}

func (s *Service) ListActivations(ctx context.Context, userID string) ([]*WelfareActivation, error) {
	return s.activations.Find(ctx, &WelfareActivation{UserID: userID})
}

// Activate buys a welfare package. Requires a fixed fund activation at the
// same level; debits the package amount through the ledger.
func (s *Service) Activate(ctx context.Context, userID, packageID string) (*WelfareActivation, error) {
	if err := s.accounts.Exists(ctx, userID); err != nil {
		return nil, err
	}

	pkg, err := s.packages.FindOne(ctx, &WelfarePackage{ID: packageID})
	if err != nil {
		return nil, err
	}
	if pkg == nil || !pkg.Active {
		return nil, errutil.NotFound("welfare package not found", nil)
	}

	has, err := s.fixedFunds.HasActivationAtLevel(ctx, userID, pkg.Level)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("requires a fixed fund activation at level %d", pkg.Level), nil)
	}

	existing, err := s.activations.FindOne(ctx, &WelfareActivation{UserID: userID, PackageID: packageID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("welfare package already activated", nil)
	}

	now := time.Now()
	activation := &WelfareActivation{
		ID:           s.node.Generate().String(),
		UserID:       userID,
		PackageID:    pkg.ID,
		Level:        pkg.Level,
		Amount:       pkg.Amount,
		Multiplier:   pkg.Multiplier,
		DurationDays: pkg.DurationDays,
		StartedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		bal, err := s.ledger.LockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}

		_, err = s.ledger.DebitTx(ctx, tx, bal, ledger.MovementParams{
			UserID:      userID,
			Amount:      pkg.Amount,
			ReferenceID: activation.ID,
			Description: fmt.Sprintf("welfare activation: %s", pkg.Name),
		})
		if err != nil {
			return err
		}

		return s.activations.WithTrx(tx).Create(ctx, activation)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, errutil.UnprocessableEntity("insufficient balance for welfare package", nil)
		}
		if isDuplicateKey(err) {
			return nil, errutil.Conflict("welfare package already activated", nil)
		}
		zap.L().Error("welfare activation failed",
			zap.String("user_id", userID),
			zap.String("package_id", packageID),
			zap.Error(err),
		)
		return nil, err
	}

	return activation, nil
}

// ProcessUserPayouts accrues due daily payouts for every incomplete
// activation the user holds. Safe to call from page loads and the background
// sweep at the same time: the balance lock serializes writers and the guarded
// payouts_made update makes a lost race a no-op, not a double payout.
func (s *Service) ProcessUserPayouts(ctx context.Context, userID string) (int64, error) {
	activations, err := s.activations.Find(ctx, &WelfareActivation{UserID: userID})
	if err != nil {
		return 0, err
	}

	var credited int64
	for _, activation := range activations {
		if activation.Completed {
			continue
		}

		amount, err := s.accrue(ctx, activation)
		if err != nil {
			zap.L().Error("welfare payout accrual failed",
				zap.String("user_id", userID),
				zap.String("activation_id", activation.ID),
				zap.Error(err),
			)
			return credited, err
		}
		credited += amount
	}

	return credited, nil
}

func (s *Service) accrue(ctx context.Context, activation *WelfareActivation) (int64, error) {
	var credited int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		bal, err := s.ledger.LockBalance(ctx, tx, activation.UserID)
		if err != nil {
			return err
		}

		// Re-read under the balance lock.
		current, err := s.activations.WithTrx(tx).FindOne(ctx, &WelfareActivation{ID: activation.ID})
		if err != nil {
			return err
		}
		if current == nil || current.Completed {
			return nil
		}

		now := time.Now()
		due := current.PayoutsDue(now)
		if due == 0 {
			return nil
		}

		amount := int64(due) * current.PayoutPerDay()
		newPayoutsMade := current.PayoutsMade + due
		completed := newPayoutsMade >= current.DurationDays

		// Guarded update: if another writer accrued first, touch nothing.
		res := tx.WithContext(ctx).Model(&WelfareActivation{}).
			Where("id = ? AND payouts_made = ?", current.ID, current.PayoutsMade).
			Updates(map[string]any{
				"payouts_made":   newPayoutsMade,
				"last_payout_at": now,
				"completed":      completed,
				"updated_at":     now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		_, err = s.ledger.CreditTx(ctx, tx, bal, ledger.MovementParams{
			UserID:      current.UserID,
			Amount:      amount,
			ReferenceID: fmt.Sprintf("%s-payout-%d", current.ID, newPayoutsMade),
			Description: fmt.Sprintf("welfare payout %d/%d", newPayoutsMade, current.DurationDays),
		})
		if err != nil {
			return err
		}

		credited = amount
		return nil
	})
	if err != nil {
		return 0, err
	}

	return credited, nil
}

// IncompleteUserIDs lists the distinct users holding incomplete activations.
// The background sweep fans out one task per user.
func (s *Service) IncompleteUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	if err := s.db.WithContext(ctx).Model(&WelfareActivation{}).
		Where("completed = ?", false).
		Distinct("user_id").
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, err
	}
	return userIDs, nil
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
