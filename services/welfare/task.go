package welfare

import (
	"context"
	"encoding/json"

	"fundplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type payoutUserPayload struct {
	UserID string `json:"user_id"`
}

func NewPayoutRunTask() *asynq.Task {
	return asynq.NewTask(taskname.WelfarePayoutRun, nil)
}

func NewPayoutUserTask(userID string) (*asynq.Task, error) {
	payload, err := json.Marshal(payoutUserPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.WelfarePayoutUser, payload), nil
}

// HandlePayoutRun sweeps every user with an incomplete activation and fans
// out one per-user payout task each. Each sweep gets a run code so its fanout
// can be traced through the logs.
func (s *Service) HandlePayoutRun(ctx context.Context, t *asynq.Task) error {
	runCode, err := s.seq.NextPayoutRunCode(ctx)
	if err != nil {
		return err
	}

	userIDs, err := s.IncompleteUserIDs(ctx)
	if err != nil {
		return err
	}

	for _, userID := range userIDs {
		userTask, err := NewPayoutUserTask(userID)
		if err != nil {
			return err
		}
		if _, err := s.enqueuer.Enqueue(userTask, asynq.Queue("default")); err != nil {
			zap.L().Error("failed to enqueue payout task",
				zap.String("run_code", runCode),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return err
		}
	}

	zap.L().Info("welfare payout sweep enqueued",
		zap.String("run_code", runCode),
		zap.Int("users", len(userIDs)),
	)
	return nil
}

func (s *Service) HandlePayoutUser(ctx context.Context, t *asynq.Task) error {
	var payload payoutUserPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	credited, err := s.ProcessUserPayouts(ctx, payload.UserID)
	if err != nil {
		return err
	}

	zap.L().Info("welfare payouts processed",
		zap.String("user_id", payload.UserID),
		zap.Int64("credited", credited),
	)
	return nil
}
