package activityfund

// Evaluation is the derived per-level eligibility view. It is computed from
// live counts and never persisted.
type Evaluation struct {
	Level                  int   `json:"level"`
	BaseAmount             int64 `json:"base_amount"`
	PayoutAmount           int64 `json:"payout_amount"`
	TotalEligibleReferrals int64 `json:"total_eligible_referrals"`
	ClaimsCount            int64 `json:"claims_count"`
	UsedReferrals          int64 `json:"used_referrals"`
	AvailableReferrals     int64 `json:"available_referrals"`
	RequiredReferrals      int64 `json:"required_referrals"`
	CanClaim               bool  `json:"can_claim"`
}

// Evaluate applies the staircase rule: the n-th claim on a level needs
// n * perClaim referrals in total, so each claim raises the bar by perClaim.
// used/available are display fields derived from the same counts.
func Evaluate(tier Tier, claimsCount, totalReferrals int64, perClaim int, multiplier float64) Evaluation {
	required := (claimsCount + 1) * int64(perClaim)
	used := claimsCount * int64(perClaim)

	return Evaluation{
		Level:                  tier.Level,
		BaseAmount:             tier.BaseAmount,
		PayoutAmount:           int64(float64(tier.BaseAmount) * multiplier),
		TotalEligibleReferrals: totalReferrals,
		ClaimsCount:            claimsCount,
		UsedReferrals:          used,
		AvailableReferrals:     totalReferrals - used,
		RequiredReferrals:      required,
		CanClaim:               totalReferrals >= required,
	}
}
