package domain

// ─── Economy Model ──────────────────────────────────────────────────────────

// Recompute derives total, spent, available and threshold progress from
// base/bonus points and the acquired perk costs. It is total over its domain.
func Recompute(s *CharacterState) {
	if s.Threshold <= 0 {
		s.Threshold = DefaultThreshold
	}
	s.TotalPoints = s.BasePoints + s.BonusPoints
	spent := 0
	for _, p := range s.AcquiredPerks {
		spent += p.Cost
	}
	s.SpentPoints = spent
	s.AvailablePoints = s.TotalPoints - s.SpentPoints
	s.ThresholdProgress = s.TotalPoints % s.Threshold
}

// ThresholdPercent is the threshold progress as a rounded percentage.
func ThresholdPercent(s *CharacterState) int {
	t := s.Threshold
	if t <= 0 {
		t = DefaultThreshold
	}
	return (s.ThresholdProgress*100 + t/2) / t
}
