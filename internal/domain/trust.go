/**
 * @description
 * This file defines the trust-score domain: the append-only behavioral event
 * log, the seven weighted factors folded from it, immutable score snapshots,
 * and the tier brackets that confer perks. The scoring math is pure so the
 * engine can be exercised without a database.
 *
 * @notes
 * - Factors live in [0,100]; the aggregate score lives in [300,850].
 * - score = round(300 + (sum of weight*factor) * 5.5), which pins 300 at all
 *   factors zero and 850 at all factors 100.
 * - New members are seeded with an explicit 500 score and all factors at 50,
 *   independent of the formula.
 */

package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Trust factor names.
const (
	FactorLoanRepayment      = "loan_repayment"
	FactorSavingsConsistency = "savings_consistency"
	FactorChoreCompletion    = "chore_completion"
	FactorBudgetAdherence    = "budget_adherence"
	FactorGivingBehavior     = "giving_behavior"
	FactorAccountAge         = "account_age"
	FactorParentEndorsements = "parent_endorsements"
)

// FactorWeights are fixed and sum to 1.0.
var FactorWeights = map[string]float64{
	FactorLoanRepayment:      0.25,
	FactorSavingsConsistency: 0.20,
	FactorChoreCompletion:    0.15,
	FactorBudgetAdherence:    0.15,
	FactorGivingBehavior:     0.10,
	FactorAccountAge:         0.10,
	FactorParentEndorsements: 0.05,
}

// Trust event types. Each maps to exactly one factor.
const (
	EventLoanPaymentOnTime  = "loan_payment_on_time"
	EventLoanPaymentLate    = "loan_payment_late"
	EventLoanPaidEarly      = "loan_paid_early"
	EventLoanFullyRepaid    = "loan_fully_repaid"
	EventLoanDefaulted      = "loan_defaulted"
	EventSavingsStreak      = "savings_streak"
	EventSavingsGoalReached = "savings_goal_reached"
	EventChoreCompleted     = "chore_completed"
	EventBudgetWithinLimit  = "budget_within_limit"
	EventSpendLimitExceeded = "spend_limit_exceeded"
	EventGivingDonation     = "giving_donation"
	EventAccountAnniversary = "account_anniversary"
	EventParentEndorsement  = "parent_endorsement"
)

// EventFactor maps every trust event type to the single factor it adjusts.
var EventFactor = map[string]string{
	EventLoanPaymentOnTime:  FactorLoanRepayment,
	EventLoanPaymentLate:    FactorLoanRepayment,
	EventLoanPaidEarly:      FactorLoanRepayment,
	EventLoanFullyRepaid:    FactorLoanRepayment,
	EventLoanDefaulted:      FactorLoanRepayment,
	EventSavingsStreak:      FactorSavingsConsistency,
	EventSavingsGoalReached: FactorSavingsConsistency,
	EventChoreCompleted:     FactorChoreCompletion,
	EventBudgetWithinLimit:  FactorBudgetAdherence,
	EventSpendLimitExceeded: FactorBudgetAdherence,
	EventGivingDonation:     FactorGivingBehavior,
	EventAccountAnniversary: FactorAccountAge,
	EventParentEndorsement:  FactorParentEndorsements,
}

// Default point deltas applied by the core flows when they record events.
const (
	DeltaLoanPaymentOnTime  = 3
	DeltaLoanPaymentLate    = -4
	DeltaLoanPaidEarly      = 8
	DeltaLoanFullyRepaid    = 5
	DeltaLoanDefaulted      = -30
	DeltaChoreCompleted     = 2
	DeltaSavingsGoalReached = 5
	DeltaSpendLimitExceeded = -3
)

// Seed values applied at family-join time.
const (
	SeedFactorValue = 50
	SeedScore       = 500
)

// TrustScoreEvent is one append-only behavioral observation.
type TrustScoreEvent struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	FamilyID   uuid.UUID `json:"family_id"`
	EventType  string    `json:"event_type"`
	PointDelta int       `json:"point_delta"` // signed
	CreatedAt  time.Time `json:"created_at"`
}

// TrustFactors holds the current clamped factor values for a user.
type TrustFactors struct {
	UserID             uuid.UUID `json:"user_id"`
	LoanRepayment      int       `json:"loan_repayment"`
	SavingsConsistency int       `json:"savings_consistency"`
	ChoreCompletion    int       `json:"chore_completion"`
	BudgetAdherence    int       `json:"budget_adherence"`
	GivingBehavior     int       `json:"giving_behavior"`
	AccountAge         int       `json:"account_age"`
	ParentEndorsements int       `json:"parent_endorsements"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Value returns the current value of the named factor.
func (f TrustFactors) Value(factor string) int {
	switch factor {
	case FactorLoanRepayment:
		return f.LoanRepayment
	case FactorSavingsConsistency:
		return f.SavingsConsistency
	case FactorChoreCompletion:
		return f.ChoreCompletion
	case FactorBudgetAdherence:
		return f.BudgetAdherence
	case FactorGivingBehavior:
		return f.GivingBehavior
	case FactorAccountAge:
		return f.AccountAge
	case FactorParentEndorsements:
		return f.ParentEndorsements
	}
	return 0
}

// TrustScore is one immutable snapshot of a recomputed score. History is
// retained; readers take the most recent snapshot.
type TrustScore struct {
	ID         uuid.UUID    `json:"id"`
	UserID     uuid.UUID    `json:"user_id"`
	Factors    TrustFactors `json:"factors"`
	Score      int          `json:"score"`
	ComputedAt time.Time    `json:"computed_at"`
}

// ClampFactor pins a factor value to [0,100].
func ClampFactor(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ComputeScore folds the weighted factors into a 300-850 score.
func ComputeScore(f TrustFactors) int {
	weighted := 0.0
	for factor, weight := range FactorWeights {
		weighted += weight * float64(ClampFactor(f.Value(factor)))
	}
	return int(math.Round(300 + weighted*5.5))
}

// Tier brackets and perks.
const (
	TierExcellent = "excellent"
	TierGood      = "good"
	TierBuilding  = "building"
	TierNew       = "new"
)

// TierPerks describes the fixed perks conferred by a tier.
type TierPerks struct {
	Tier             string  `json:"tier"`
	LoanRateDiscount float64 `json:"loan_rate_discount"`
	CashbackBoost    float64 `json:"cashback_boost"`
	PrioritySupport  bool    `json:"priority_support"`
}

// TierForScore maps a score to its tier bracket.
func TierForScore(score int) string {
	switch {
	case score >= 750:
		return TierExcellent
	case score >= 650:
		return TierGood
	case score >= 550:
		return TierBuilding
	default:
		return TierNew
	}
}

// PerksForTier returns the fixed perk set for a tier.
func PerksForTier(tier string) TierPerks {
	switch tier {
	case TierExcellent:
		return TierPerks{Tier: tier, LoanRateDiscount: 0.02, CashbackBoost: 0.01, PrioritySupport: true}
	case TierGood:
		return TierPerks{Tier: tier, LoanRateDiscount: 0.01, CashbackBoost: 0.005, PrioritySupport: true}
	case TierBuilding:
		return TierPerks{Tier: tier, LoanRateDiscount: 0.005, CashbackBoost: 0, PrioritySupport: false}
	default:
		return TierPerks{Tier: TierNew}
	}
}
