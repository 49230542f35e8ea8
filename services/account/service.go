package account

import (
	"context"
	"time"

	"fundplane/pkg/errutil"
	"fundplane/pkg/repository"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	accounts repository.Repository[Account]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		accounts: repository.ProvideStore[Account](p.DB),
	}
}

func (s *Service) Get(ctx context.Context, userID string) (*Account, error) {
	acct, err := s.accounts.FindOne(ctx, &Account{ID: userID})
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return acct, nil
}

// Exists is the cheap pre-transaction user check the mutating procedures run.
func (s *Service) Exists(ctx context.Context, userID string) error {
	if userID == "" {
		return errutil.BadRequest("user_id is required", nil)
	}

	count, err := s.accounts.Count(ctx, &Account{ID: userID})
	if err != nil {
		return err
	}
	if count == 0 {
		return errutil.NotFound("user not found", nil)
	}
	return nil
}

// SetWithdrawalPin stores a bcrypt hash of the pin. The pin can only be set
// once; changing it goes through support. The update is guarded on the hash
// still being empty, so concurrent setters cannot overwrite each other.
func (s *Service) SetWithdrawalPin(ctx context.Context, userID, pin string) error {
	if len(pin) < 4 {
		return errutil.ValidationFailed("pin must be at least 4 digits", nil)
	}

	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		zap.L().Error("failed to hash withdrawal pin", zap.Error(err))
		return err
	}

	res := s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ? AND (withdrawal_pin_hash = '' OR withdrawal_pin_hash IS NULL)", userID).
		Updates(map[string]any{
			"withdrawal_pin_hash": string(hash),
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("withdrawal pin already set", nil)
	}

	return nil
}

func (s *Service) VerifyWithdrawalPin(ctx context.Context, userID, pin string) error {
	acct, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if acct.WithdrawalPinHash == "" {
		return errutil.UnprocessableEntity("withdrawal pin not set", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.WithdrawalPinHash), []byte(pin)); err != nil {
		return errutil.Forbidden("invalid withdrawal pin", nil)
	}

	return nil
}
