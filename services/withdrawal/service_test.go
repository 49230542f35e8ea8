package withdrawal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fundplane/pkg/config"
	"fundplane/pkg/errutil"
	"fundplane/services/account"
	"fundplane/services/ledger"
	"fundplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeSequence struct {
	n int
}

func (f *fakeSequence) NextClaimCode(ctx context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("CLM-TEST-%03d", f.n), nil
}

func (f *fakeSequence) NextWithdrawalCode(ctx context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("WDR-TEST-%03d", f.n), nil
}

func (f *fakeSequence) NextPayoutRunCode(ctx context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("PRN-TEST-%03d", f.n), nil
}

type testEnv struct {
	db     *gorm.DB
	svc    *Service
	ledger *ledger.Service
	accts  *account.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t,
		&account.Account{},
		&ledger.Balance{},
		&ledger.LedgerEntry{},
		&WithdrawalRequest{},
		&BankInfo{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	accountSvc := account.NewService(account.ServiceParams{DB: db})

	svc := NewService(ServiceParams{
		Config:   &config.Config{},
		DB:       db,
		Node:     node,
		Sequence: &fakeSequence{},
		Ledger:   ledgerSvc,
		Accounts: accountSvc,
	})

	return &testEnv{db: db, svc: svc, ledger: ledgerSvc, accts: accountSvc}
}

func (e *testEnv) createFundedUser(t *testing.T, userID string, balance int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.db.Create(&account.Account{
		ID:        userID,
		Username:  userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}).Error)
	require.NoError(t, e.accts.SetWithdrawalPin(ctx, userID, "123456"))

	_, err := e.svc.SetBankInfo(ctx, userID, BankInfoParams{
		BankName:      "Test Bank",
		AccountNumber: "0001112223",
		AccountName:   userID,
	})
	require.NoError(t, err)

	if balance > 0 {
		_, err = e.ledger.Credit(ctx, ledger.MovementParams{
			UserID:      userID,
			Amount:      balance,
			ReferenceID: fmt.Sprintf("seed-%s", userID),
		})
		require.NoError(t, err)
	}
}

func TestRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)

	request, err := env.svc.Request(ctx, "user-1", 5000, "123456")
	require.NoError(t, err)
	require.Equal(t, StatusPending, request.Status)
	require.Equal(t, int64(5000), request.Amount)
	require.Equal(t, int64(500), request.Fee)
	require.NotEmpty(t, request.Code)

	// 10000 - 5000 - 500
	snapshot, err := env.ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(4500), snapshot.Balance)
}

func TestRequest_BelowMinimum(t *testing.T) {
	env := newTestEnv(t)
	env.createFundedUser(t, "user-1", 10000)

	_, err := env.svc.Request(context.Background(), "user-1", 999, "123456")
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusValidationFailed, be.Code)
}

func TestRequest_WrongPin(t *testing.T) {
	env := newTestEnv(t)
	env.createFundedUser(t, "user-1", 10000)

	_, err := env.svc.Request(context.Background(), "user-1", 5000, "000000")
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusForbidden, be.Code)
}

func TestRequest_InsufficientForAmountPlusFee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// Covers the amount but not the 10% fee.
	env.createFundedUser(t, "user-1", 5000)

	_, err := env.svc.Request(ctx, "user-1", 5000, "123456")
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Code)

	// Nothing committed.
	snapshot, err := env.ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(5000), snapshot.Balance)
}

func TestRequest_NoBankInfo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.db.Create(&account.Account{
		ID:        "user-1",
		Username:  "user-1",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}).Error)
	require.NoError(t, env.accts.SetWithdrawalPin(ctx, "user-1", "123456"))

	_, err := env.svc.Request(ctx, "user-1", 5000, "123456")
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Code)
}

func TestReject_RefundsAmountPlusFee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)

	request, err := env.svc.Request(ctx, "user-1", 5000, "123456")
	require.NoError(t, err)

	rejected, err := env.svc.Reject(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.ProcessedAt)

	snapshot, err := env.ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(10000), snapshot.Balance)

	valid, err := env.ledger.VerifyChain(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, valid)
}

func TestApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)

	request, err := env.svc.Request(ctx, "user-1", 5000, "123456")
	require.NoError(t, err)

	approved, err := env.svc.Approve(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)

	// Approval does not move money again.
	snapshot, err := env.ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(4500), snapshot.Balance)
}

func TestReject_RefundsOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)

	request, err := env.svc.Request(ctx, "user-1", 5000, "123456")
	require.NoError(t, err)

	_, err = env.svc.Reject(ctx, request.ID)
	require.NoError(t, err)

	_, err = env.svc.Reject(ctx, request.ID)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusConflict, be.Code)

	// Exactly one refund credit was written.
	var refunds int64
	require.NoError(t, env.db.Model(&ledger.LedgerEntry{}).
		Where("user_id = ? AND reference_id = ?", "user-1", request.ID+"-refund").
		Count(&refunds).Error)
	require.Equal(t, int64(1), refunds)

	snapshot, err := env.ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(10000), snapshot.Balance)
}

func TestProcess_AlreadyProcessed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)

	request, err := env.svc.Request(ctx, "user-1", 5000, "123456")
	require.NoError(t, err)

	_, err = env.svc.Approve(ctx, request.ID)
	require.NoError(t, err)

	_, err = env.svc.Reject(ctx, request.ID)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusConflict, be.Code)
}
