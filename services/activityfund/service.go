package activityfund

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fundplane/pkg/config"
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

const claimMaxAttempts = 3

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator

	ledger   *ledger.Service
	accounts *account.Service

	referrals repository.Repository[ReferralRecord]
	claims    repository.Repository[ClaimRecord]

	referralsPerClaim int
	payoutMultiplier  float64
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
	perClaim := p.Config.Funds.ReferralsPerClaim
	if perClaim <= 0 {
		perClaim = 3
	}
	multiplier := p.Config.Funds.PayoutMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	return &Service{
		db:   p.DB,
		node: p.Node,
		seq:  p.Sequence,

		ledger:   p.Ledger,
		accounts: p.Accounts,

		referrals: repository.ProvideStore[ReferralRecord](p.DB),
		claims:    repository.ProvideStore[ClaimRecord](p.DB),

		referralsPerClaim: perClaim,
		payoutMultiplier:  multiplier,
	}
}

// ClaimResult is the outcome of a claim attempt. An ineligible claim is a
// Success=false result, not an error.
type ClaimResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	Level          int    `json:"level"`
	SequenceNumber int64  `json:"sequence_number,omitempty"`
	PayoutAmount   int64  `json:"payout,omitempty"`
	ClaimCode      string `json:"claim_code,omitempty"`
}

func (s *Service) RecordReferral(ctx context.Context, referrerID, referredID string, level int) (*ReferralRecord, error) {
	if referrerID == "" || referredID == "" {
		return nil, errutil.BadRequest("referrer_id and referred_id are required", nil)
	}
	if referrerID == referredID {
		return nil, errutil.ValidationFailed("a user cannot refer themselves", nil)
	}
	if _, ok := TierByLevel(level); !ok {
		return nil, errutil.ValidationFailed("unknown activity fund level", nil)
	}

	if err := s.accounts.Exists(ctx, referrerID); err != nil {
		return nil, err
	}

	record := &ReferralRecord{
		ID:         s.node.Generate().String(),
		ReferrerID: referrerID,
		ReferredID: referredID,
		Level:      level,
		CreatedAt:  time.Now(),
	}

	if err := s.referrals.Create(ctx, record); err != nil {
		if isDuplicateKey(err) {
			return nil, errutil.Conflict("referral already recorded", nil)
		}
		zap.L().Error("failed to record referral", zap.Error(err))
		return nil, err
	}

	return record, nil
}

// Claim is the single mutating entry point for activity funds. Admission is
// decided inside one transaction holding the FOR UPDATE lock on the user's
// balance row, so two racing claims for the same user serialize on that row.
// The unique (user_id, level, sequence_number) index backstops anything the
// lock misses; a conflicting commit is retried up to claimMaxAttempts times
// before surfacing a retryable conflict.
func (s *Service) Claim(ctx context.Context, userID string, level int) (*ClaimResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("user_id", userID),
		zap.Int("level", level),
	}

	tier, ok := TierByLevel(level)
	if !ok {
		return nil, errutil.ValidationFailed("unknown activity fund level", nil)
	}

	if err := s.accounts.Exists(ctx, userID); err != nil {
		return nil, err
	}

	claimCode, err := s.seq.NextClaimCode(ctx)
	if err != nil {
		zap.L().With(opts...).Error("failed to generate claim code", zap.Error(err))
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < claimMaxAttempts; attempt++ {
		result, err := s.claimOnce(ctx, userID, tier, claimCode)
		if err == nil {
			return result, nil
		}
		if !isRetryableClaimErr(err) {
			return nil, err
		}

		lastErr = err
		zap.L().With(opts...).Warn("claim conflicted, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	zap.L().With(opts...).Error("claim retries exhausted", zap.Error(lastErr))
	return nil, errutil.Conflict("claim conflicted with a concurrent request, retry", nil)
}

func (s *Service) claimOnce(ctx context.Context, userID string, tier Tier, claimCode string) (*ClaimResult, error) {
	var result *ClaimResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		bal, err := s.ledger.LockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}

		var prior struct {
			Count  int64
			MaxSeq int64
		}
		if err := tx.WithContext(ctx).Model(&ClaimRecord{}).
			Select("COUNT(*) AS count, COALESCE(MAX(sequence_number), 0) AS max_seq").
			Where("user_id = ? AND level = ?", userID, tier.Level).
			Scan(&prior).Error; err != nil {
			return err
		}

		// A gap or duplicate in the sequence means the ledger of claims has
		// been corrupted out-of-band. Refuse to extend it.
		if prior.MaxSeq != prior.Count {
			zap.L().Error("claim sequence not contiguous",
				zap.String("user_id", userID),
				zap.Int("level", tier.Level),
				zap.Int64("claims_count", prior.Count),
				zap.Int64("max_sequence", prior.MaxSeq),
			)
			return errutil.Internal("claim records are inconsistent", nil)
		}

		totalReferrals, err := s.referrals.WithTrx(tx).Count(ctx, &ReferralRecord{
			ReferrerID: userID,
			Level:      tier.Level,
		})
		if err != nil {
			return err
		}

		eval := Evaluate(tier, prior.Count, totalReferrals, s.referralsPerClaim, s.payoutMultiplier)
		if !eval.CanClaim {
			result = &ClaimResult{
				Success: false,
				Level:   tier.Level,
				Message: fmt.Sprintf("insufficient referrals: need %d, have %d",
					eval.RequiredReferrals, eval.TotalEligibleReferrals),
			}
			return nil
		}

		claim := &ClaimRecord{
			ID:                s.node.Generate().String(),
			UserID:            userID,
			Level:             tier.Level,
			SequenceNumber:    prior.Count + 1,
			RequiredReferrals: eval.RequiredReferrals,
			BaseAmount:        tier.BaseAmount,
			PayoutAmount:      eval.PayoutAmount,
			ClaimCode:         claimCode,
			CreatedAt:         time.Now(),
		}
		if err := s.claims.WithTrx(tx).Create(ctx, claim); err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]any{
			"level":           tier.Level,
			"sequence_number": claim.SequenceNumber,
			"claim_code":      claim.ClaimCode,
		})
		if _, err := s.ledger.CreditTx(ctx, tx, bal, ledger.MovementParams{
			UserID:      userID,
			Amount:      eval.PayoutAmount,
			ReferenceID: claim.ID,
			Description: fmt.Sprintf("activity fund level %d payout", tier.Level),
			Metadata:    meta,
		}); err != nil {
			return err
		}

		result = &ClaimResult{
			Success:        true,
			Level:          tier.Level,
			SequenceNumber: claim.SequenceNumber,
			PayoutAmount:   claim.PayoutAmount,
			ClaimCode:      claim.ClaimCode,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ReportFor computes the ordered 10-tier eligibility report from live counts.
// Side-effect free; calling it never changes what a later call returns.
func (s *Service) ReportFor(ctx context.Context, userID string) ([]Evaluation, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if err := s.accounts.Exists(ctx, userID); err != nil {
		return nil, err
	}

	type levelCount struct {
		Level int
		Count int64
	}

	var refCounts []levelCount
	if err := s.db.WithContext(ctx).Model(&ReferralRecord{}).
		Select("level, COUNT(*) AS count").
		Where("referrer_id = ?", userID).
		Group("level").
		Scan(&refCounts).Error; err != nil {
		zap.L().Error("failed to count referrals", zap.Error(err))
		return nil, err
	}

	var claimCounts []levelCount
	if err := s.db.WithContext(ctx).Model(&ClaimRecord{}).
		Select("level, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("level").
		Scan(&claimCounts).Error; err != nil {
		zap.L().Error("failed to count claims", zap.Error(err))
		return nil, err
	}

	refByLevel := make(map[int]int64, len(refCounts))
	for _, rc := range refCounts {
		refByLevel[rc.Level] = rc.Count
	}
	claimsByLevel := make(map[int]int64, len(claimCounts))
	for _, cc := range claimCounts {
		claimsByLevel[cc.Level] = cc.Count
	}

	report := make([]Evaluation, 0, len(Tiers))
	for _, tier := range Tiers {
		report = append(report, Evaluate(
			tier,
			claimsByLevel[tier.Level],
			refByLevel[tier.Level],
			s.referralsPerClaim,
			s.payoutMultiplier,
		))
	}

	return report, nil
}

func isRetryableClaimErr(err error) bool {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return be.Code.Retryable()
	}
	return isDuplicateKey(err)
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
