package dashboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fundplane/services/account"
	"fundplane/services/activityfund"
	"fundplane/services/ledger"
	"fundplane/services/testutil"
	"fundplane/services/withdrawal"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
)

func TestMetricsFor(t *testing.T) {
	db := testutil.NewTestDB(t,
		&account.Account{},
		&ledger.Balance{},
		&ledger.LedgerEntry{},
		&activityfund.ReferralRecord{},
		&withdrawal.WithdrawalRequest{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	accountSvc := account.NewService(account.ServiceParams{DB: db})
	svc := NewService(ServiceParams{DB: db, Ledger: ledgerSvc, Accounts: accountSvc})

	ctx := context.Background()
	require.NoError(t, db.Create(&account.Account{
		ID:        "user-1",
		Username:  "user-1",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}).Error)

	_, err = ledgerSvc.Credit(ctx, ledger.MovementParams{
		UserID:      "user-1",
		Amount:      10000,
		ReferenceID: "seed",
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, db.Create(&activityfund.ReferralRecord{
			ID:         fmt.Sprintf("ref-%d", i),
			ReferrerID: "user-1",
			ReferredID: fmt.Sprintf("friend-%d", i),
			Level:      1,
			CreatedAt:  time.Now(),
		}).Error)
	}

	// Rejected withdrawals do not count toward the total.
	require.NoError(t, db.Create(&withdrawal.WithdrawalRequest{
		ID: "wd-1", UserID: "user-1", Amount: 3000, Fee: 300,
		Status: withdrawal.StatusApproved, RequestedAt: time.Now(),
	}).Error)
	require.NoError(t, db.Create(&withdrawal.WithdrawalRequest{
		ID: "wd-2", UserID: "user-1", Amount: 1000, Fee: 100,
		Status: withdrawal.StatusRejected, RequestedAt: time.Now(),
	}).Error)

	metrics, err := svc.MetricsFor(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(10000), metrics.Balance)
	require.Equal(t, int64(3000), metrics.TotalWithdrawal)
	require.Equal(t, int64(4), metrics.ReferralCount)
}

func TestMetricsFor_UnknownUser(t *testing.T) {
	db := testutil.NewTestDB(t, &account.Account{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	accountSvc := account.NewService(account.ServiceParams{DB: db})
	svc := NewService(ServiceParams{DB: db, Ledger: ledgerSvc, Accounts: accountSvc})

	_, err = svc.MetricsFor(context.Background(), "nobody")
	require.Error(t, err)
}
