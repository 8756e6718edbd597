package domain

import "testing"

func allFactors(v int) TrustFactors {
	return TrustFactors{
		LoanRepayment:      v,
		SavingsConsistency: v,
		ChoreCompletion:    v,
		BudgetAdherence:    v,
		GivingBehavior:     v,
		AccountAge:         v,
		ParentEndorsements: v,
	}
}

func TestComputeScoreAnchors(t *testing.T) {
	if got := ComputeScore(allFactors(0)); got != 300 {
		t.Fatalf("all factors 0: expected 300, got %d", got)
	}
	if got := ComputeScore(allFactors(100)); got != 850 {
		t.Fatalf("all factors 100: expected 850, got %d", got)
	}
	if got := ComputeScore(allFactors(50)); got != 575 {
		t.Fatalf("all factors 50: expected 575, got %d", got)
	}
}

func TestComputeScoreBounds(t *testing.T) {
	// Sweep a spread of factor vectors; the score must stay inside [300,850].
	for lr := 0; lr <= 100; lr += 25 {
		for sc := 0; sc <= 100; sc += 25 {
			for cc := 0; cc <= 100; cc += 50 {
				f := TrustFactors{
					LoanRepayment:      lr,
					SavingsConsistency: sc,
					ChoreCompletion:    cc,
					BudgetAdherence:    100 - cc,
					GivingBehavior:     lr / 2,
					AccountAge:         sc / 2,
					ParentEndorsements: 100 - lr,
				}
				score := ComputeScore(f)
				if score < 300 || score > 850 {
					t.Fatalf("score %d out of bounds for factors %+v", score, f)
				}
			}
		}
	}
}

func TestComputeScoreClampsOutOfRangeFactors(t *testing.T) {
	f := allFactors(0)
	f.LoanRepayment = 250
	f.ChoreCompletion = -40
	score := ComputeScore(f)
	if score < 300 || score > 850 {
		t.Fatalf("clamped score out of bounds: %d", score)
	}
	// 250 clamps to 100, so only loan repayment contributes: 300 + 0.25*100*5.5.
	if score != 438 {
		t.Fatalf("expected 438, got %d", score)
	}
}

func TestFactorWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, w := range FactorWeights {
		sum += w
	}
	if sum < 0.9999 || sum > 1.0001 {
		t.Fatalf("weights sum to %f, want 1.0", sum)
	}
}

func TestEveryEventTypeMapsToAKnownFactor(t *testing.T) {
	for event, factor := range EventFactor {
		if _, ok := FactorWeights[factor]; !ok {
			t.Errorf("event %s maps to unknown factor %s", event, factor)
		}
	}
}

func TestTierBrackets(t *testing.T) {
	cases := []struct {
		score int
		tier  string
	}{
		{850, TierExcellent},
		{750, TierExcellent},
		{749, TierGood},
		{650, TierGood},
		{649, TierBuilding},
		{550, TierBuilding},
		{549, TierNew},
		{300, TierNew},
	}
	for _, c := range cases {
		if got := TierForScore(c.score); got != c.tier {
			t.Errorf("score %d: expected tier %s, got %s", c.score, c.tier, got)
		}
	}
}

func TestPerksEscalateWithTier(t *testing.T) {
	excellent := PerksForTier(TierExcellent)
	good := PerksForTier(TierGood)
	newbie := PerksForTier(TierNew)

	if !excellent.PrioritySupport {
		t.Error("excellent tier should include priority support")
	}
	if excellent.LoanRateDiscount <= good.LoanRateDiscount {
		t.Error("excellent discount should exceed good discount")
	}
	if newbie.LoanRateDiscount != 0 || newbie.PrioritySupport {
		t.Error("new tier should carry no perks")
	}
}
