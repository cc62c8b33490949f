package matching

// Fairness scores a team split from the team average ratings:
// 1 - (max - min) / balanceThreshold, clamped to [0, 1].
func Fairness(averages []float64, balanceThreshold float64) float64 {
	if len(averages) < 2 {
		return 1
	}
	lo, hi := averages[0], averages[0]
	for _, avg := range averages[1:] {
		lo = min(lo, avg)
		hi = max(hi, avg)
	}
	if balanceThreshold <= 0 {
		if hi == lo {
			return 1
		}
		return 0
	}
	score := 1 - (hi-lo)/balanceThreshold
	return max(0, min(1, score))
}

// TeamFairness scores built teams.
func TeamFairness(teams []Team, balanceThreshold float64) float64 {
	averages := make([]float64, len(teams))
	for i, t := range teams {
		averages[i] = t.AverageRating
	}
	return Fairness(averages, balanceThreshold)
}
