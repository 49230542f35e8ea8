package dashboard

import (
	"context"

	"fundplane/services/account"
	"fundplane/services/activityfund"
	"fundplane/services/ledger"
	"fundplane/services/withdrawal"

	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	ledger   *ledger.Service
	accounts *account.Service
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Ledger   *ledger.Service
	Accounts *account.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		ledger:   p.Ledger,
		accounts: p.Accounts,
	}
}

type Metrics struct {
	Balance         int64 `json:"balance"`
	TotalWithdrawal int64 `json:"total_withdrawal"`
	ReferralCount   int64 `json:"referral_count"`
}

// MetricsFor computes the per-user dashboard projection from live data. The
// three queries are independent, so they run in parallel.
func (s *Service) MetricsFor(ctx context.Context, userID string) (*Metrics, error) {
	if err := s.accounts.Exists(ctx, userID); err != nil {
		return nil, err
	}

	var metrics Metrics
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snapshot, err := s.ledger.GetBalance(gctx, userID)
		if err != nil {
			return err
		}
		metrics.Balance = snapshot.Balance
		return nil
	})

	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&withdrawal.WithdrawalRequest{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("user_id = ? AND status != ?", userID, withdrawal.StatusRejected).
			Scan(&metrics.TotalWithdrawal).Error
	})

	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&activityfund.ReferralRecord{}).
			Where("referrer_id = ?", userID).
			Count(&metrics.ReferralCount).Error
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &metrics, nil
}
