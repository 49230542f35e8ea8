package welfare

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"fundplane/pkg/errutil"
	"fundplane/pkg/taskname"
	"fundplane/services/account"
	"fundplane/services/fixedfund"
	"fundplane/services/ledger"
	"fundplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
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

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{}, nil
}

type testEnv struct {
	db       *gorm.DB
	svc      *Service
	ledger   *ledger.Service
	fixed    *fixedfund.Service
	enqueuer *fakeEnqueuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t,
		&account.Account{},
		&ledger.Balance{},
		&ledger.LedgerEntry{},
		&fixedfund.FixedFund{},
		&fixedfund.FixedFundActivation{},
		&WelfarePackage{},
		&WelfareActivation{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	accountSvc := account.NewService(account.ServiceParams{DB: db})
	fixedSvc := fixedfund.NewService(fixedfund.ServiceParams{
		DB:       db,
		Node:     node,
		Ledger:   ledgerSvc,
		Accounts: accountSvc,
	})

	enqueuer := &fakeEnqueuer{}
	svc := NewService(ServiceParams{
		DB:         db,
		Node:       node,
		Ledger:     ledgerSvc,
		Accounts:   accountSvc,
		FixedFunds: fixedSvc,
		Enqueuer:   enqueuer,
		Sequence:   &fakeSequence{},
	})

	return &testEnv{db: db, svc: svc, ledger: ledgerSvc, fixed: fixedSvc, enqueuer: enqueuer}
}

func (e *testEnv) createFundedUser(t *testing.T, userID string, balance int64) {
	t.Helper()

	require.NoError(t, e.db.Create(&account.Account{
		ID:        userID,
		Username:  userID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}).Error)

	if balance > 0 {
		_, err := e.ledger.Credit(context.Background(), ledger.MovementParams{
			UserID:      userID,
			Amount:      balance,
			ReferenceID: fmt.Sprintf("seed-%s", userID),
		})
		require.NoError(t, err)
	}
}

func (e *testEnv) activateFixedFund(t *testing.T, userID string, level int, amount int64) {
	t.Helper()
	ctx := context.Background()

	fund, err := e.fixed.CreateFund(ctx, fixedfund.CreateFundParams{
		Name:   fmt.Sprintf("Fixed L%d", level),
		Level:  level,
		Amount: amount,
	})
	require.NoError(t, err)

	_, err = e.fixed.Activate(ctx, userID, fund.ID)
	require.NoError(t, err)
}

func (e *testEnv) createPackage(t *testing.T, level int, amount int64, multiplier float64, days int) *WelfarePackage {
	t.Helper()

	pkg, err := e.svc.CreatePackage(context.Background(), CreatePackageParams{
		Name:         fmt.Sprintf("Welfare L%d", level),
		Level:        level,
		Amount:       amount,
		Multiplier:   multiplier,
		DurationDays: days,
	})
	require.NoError(t, err)
	return pkg
}

func (e *testEnv) backdateActivation(t *testing.T, activationID string, days int) {
	t.Helper()
	startedAt := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	require.NoError(t, e.db.Model(&WelfareActivation{}).
		Where("id = ?", activationID).
		Update("started_at", startedAt).Error)
}

func TestActivate_RequiresFixedFundAtLevel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)
	pkg := env.createPackage(t, 2, 3000, 2.0, 30)

	_, err := env.svc.Activate(ctx, "user-1", pkg.ID)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Code)
}

func TestActivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)
	env.activateFixedFund(t, "user-1", 2, 2000)
	pkg := env.createPackage(t, 2, 3000, 2.0, 30)

	activation, err := env.svc.Activate(ctx, "user-1", pkg.ID)
	require.NoError(t, err)
	require.Equal(t, 2, activation.Level)
	require.Zero(t, activation.PayoutsMade)

	// 10000 - 2000 fixed fund - 3000 package
	snapshot, err := env.ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(5000), snapshot.Balance)
}

func TestActivate_Twice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 20000)
	env.activateFixedFund(t, "user-1", 2, 2000)
	pkg := env.createPackage(t, 2, 3000, 2.0, 30)

	_, err := env.svc.Activate(ctx, "user-1", pkg.ID)
	require.NoError(t, err)

	_, err = env.svc.Activate(ctx, "user-1", pkg.ID)
	require.Error(t, err)

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusConflict, be.Code)
}

func TestProcessUserPayouts_IdempotentAccrual(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)
	env.activateFixedFund(t, "user-1", 2, 2000)
	// 3000 * 2.0 / 30 days = 200 per day
	pkg := env.createPackage(t, 2, 3000, 2.0, 30)

	activation, err := env.svc.Activate(ctx, "user-1", pkg.ID)
	require.NoError(t, err)

	env.backdateActivation(t, activation.ID, 3)

	credited, err := env.svc.ProcessUserPayouts(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(600), credited)

	// Second run accrues nothing new.
	credited, err = env.svc.ProcessUserPayouts(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, credited)

	var current WelfareActivation
	require.NoError(t, env.db.First(&current, "id = ?", activation.ID).Error)
	require.Equal(t, 3, current.PayoutsMade)
	require.False(t, current.Completed)
}

func TestHandlePayoutRun_FansOutPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)
	env.activateFixedFund(t, "user-1", 2, 2000)
	pkg := env.createPackage(t, 2, 3000, 2.0, 30)

	_, err := env.svc.Activate(ctx, "user-1", pkg.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.HandlePayoutRun(ctx, NewPayoutRunTask()))

	require.Len(t, env.enqueuer.tasks, 1)
	require.Equal(t, taskname.WelfarePayoutUser, env.enqueuer.tasks[0].Type())

	var payload payoutUserPayload
	require.NoError(t, json.Unmarshal(env.enqueuer.tasks[0].Payload(), &payload))
	require.Equal(t, "user-1", payload.UserID)
}

func TestProcessUserPayouts_CappedAtDuration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createFundedUser(t, "user-1", 10000)
	env.activateFixedFund(t, "user-1", 2, 2000)
	pkg := env.createPackage(t, 2, 3000, 2.0, 30)

	activation, err := env.svc.Activate(ctx, "user-1", pkg.ID)
	require.NoError(t, err)

	env.backdateActivation(t, activation.ID, 100)

	credited, err := env.svc.ProcessUserPayouts(ctx, "user-1")
	require.NoError(t, err)
	// 30 payouts of 200, never more.
	require.Equal(t, int64(6000), credited)

	var current WelfareActivation
	require.NoError(t, env.db.First(&current, "id = ?", activation.ID).Error)
	require.Equal(t, 30, current.PayoutsMade)
	require.True(t, current.Completed)

	credited, err = env.svc.ProcessUserPayouts(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, credited)

	valid, err := env.ledger.VerifyChain(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, valid)
}
