package activityfund

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
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
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t,
		&account.Account{},
		&ledger.Balance{},
		&ledger.LedgerEntry{},
		&ReferralRecord{},
		&ClaimRecord{},
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

	return &testEnv{db: db, svc: svc, ledger: ledgerSvc}
}

func (e *testEnv) createUser(t *testing.T, userID string) {
	t.Helper()
	require.NoError(t, e.db.Create(&account.Account{
		ID:        userID,
		Username:  userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}).Error)
}

func (e *testEnv) addReferrals(t *testing.T, referrerID string, level, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.svc.RecordReferral(context.Background(), referrerID,
			fmt.Sprintf("%s-ref-l%d-%d", referrerID, level, i), level)
		require.NoError(t, err)
	}
}

func TestClaim_ZeroReferrals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")

	result, err := env.svc.Claim(ctx, "user-1", 1)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Message)

	report, err := env.svc.ReportFor(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, report, 10)
	for _, eval := range report {
		require.False(t, eval.CanClaim)
		require.Zero(t, eval.ClaimsCount)
	}
}

func TestClaim_MonotonicUnlock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")
	env.addReferrals(t, "user-1", 1, 6)

	first, err := env.svc.Claim(ctx, "user-1", 1)
	require.NoError(t, err)
	require.True(t, first.Success)
	require.Equal(t, int64(1), first.SequenceNumber)
	require.Equal(t, int64(6000), first.PayoutAmount)

	second, err := env.svc.Claim(ctx, "user-1", 1)
	require.NoError(t, err)
	require.True(t, second.Success)
	require.Equal(t, int64(2), second.SequenceNumber)

	third, err := env.svc.Claim(ctx, "user-1", 1)
	require.NoError(t, err)
	require.False(t, third.Success)

	snapshot, err := env.ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(12000), snapshot.Balance)
}

// The client reads the payout amount from the "payout" key; renaming it
// breaks the success toast.
func TestClaimResult_PayoutFieldName(t *testing.T) {
	b, err := json.Marshal(&ClaimResult{Success: true, Level: 3, PayoutAmount: 20000})
	require.NoError(t, err)
	require.Contains(t, string(b), `"payout":20000`)
	require.NotContains(t, string(b), "payout_amount")
}

func TestClaim_TierThreePayout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")
	env.addReferrals(t, "user-1", 3, 3)

	result, err := env.svc.Claim(ctx, "user-1", 3)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, int64(20000), result.PayoutAmount)
}

func TestClaim_UnknownLevel(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "user-1")

	_, err := env.svc.Claim(context.Background(), "user-1", 42)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusValidationFailed, be.Code)
}

func TestClaim_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Claim(context.Background(), "nobody", 1)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Code)
}

func TestClaim_ConcurrentSingleAdmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")
	env.addReferrals(t, "user-1", 1, 3)

	var wg sync.WaitGroup
	results := make([]*ClaimResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.Claim(ctx, "user-1", 1)
		}(i)
	}
	wg.Wait()

	// Exactly one admission: the loser sees either a rejection result or,
	// if its retries lost every race, a retryable conflict.
	successes := 0
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			var be errutil.BaseError
			require.ErrorAs(t, errs[i], &be)
			require.Equal(t, errutil.StatusConflict, be.Code)
			continue
		}
		if results[i].Success {
			successes++
		}
	}
	require.Equal(t, 1, successes)

	var claims int64
	require.NoError(t, env.db.Model(&ClaimRecord{}).
		Where("user_id = ? AND level = ?", "user-1", 1).
		Count(&claims).Error)
	require.Equal(t, int64(1), claims)

	snapshot, err := env.ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(6000), snapshot.Balance)
}

func TestClaim_SequenceGapIsFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")
	env.addReferrals(t, "user-1", 1, 3)

	// A claim row with a sequence number that skips ahead means the claim
	// history was corrupted out-of-band.
	require.NoError(t, env.db.Create(&ClaimRecord{
		ID:             "bad-claim",
		UserID:         "user-1",
		Level:          1,
		SequenceNumber: 5,
		BaseAmount:     3000,
		PayoutAmount:   6000,
		CreatedAt:      time.Now(),
	}).Error)

	_, err := env.svc.Claim(ctx, "user-1", 1)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusInternal, be.Code)
}

func TestClaim_CreditsLedgerWithClaimReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")
	env.addReferrals(t, "user-1", 1, 3)

	result, err := env.svc.Claim(ctx, "user-1", 1)
	require.NoError(t, err)
	require.True(t, result.Success)

	var entry ledger.LedgerEntry
	require.NoError(t, env.db.Where("user_id = ?", "user-1").First(&entry).Error)
	require.Equal(t, ledger.EntryTypeCredit, entry.Type)
	require.Equal(t, result.PayoutAmount, entry.Amount)
	require.NotEmpty(t, entry.ReferenceID)

	valid, err := env.ledger.VerifyChain(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, valid)
}

func TestReportFor_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")
	env.addReferrals(t, "user-1", 1, 3)

	result, err := env.svc.Claim(ctx, "user-1", 1)
	require.NoError(t, err)
	require.True(t, result.Success)

	first, err := env.svc.ReportFor(ctx, "user-1")
	require.NoError(t, err)
	second, err := env.svc.ReportFor(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, first, second)

	levelOne := first[0]
	require.Equal(t, 1, levelOne.Level)
	require.Equal(t, int64(1), levelOne.ClaimsCount)
	require.Equal(t, int64(3), levelOne.TotalEligibleReferrals)
	require.Equal(t, int64(6), levelOne.RequiredReferrals)
	require.False(t, levelOne.CanClaim)
}

func TestRecordReferral_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "user-1")

	_, err := env.svc.RecordReferral(ctx, "user-1", "friend", 1)
	require.NoError(t, err)

	_, err = env.svc.RecordReferral(ctx, "user-1", "friend", 1)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusConflict, be.Code)
}

func TestRecordReferral_SelfReferral(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "user-1")

	_, err := env.svc.RecordReferral(context.Background(), "user-1", "user-1", 1)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusValidationFailed, be.Code)
}
