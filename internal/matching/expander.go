package matching

import "time"

// ratingWindow is the acceptable range for a player of rating who has waited
// wait: BaseRatingRange plus rate for every completed ExpansionStep.
func ratingWindow(rating int, wait time.Duration, rate int, s Settings) RatingRange {
	expansions := 0
	if s.ExpansionStep > 0 && wait > 0 {
		expansions = int(wait / s.ExpansionStep)
	}
	spread := s.BaseRatingRange + expansions*rate
	return RatingRange{Min: rating - spread, Max: rating + spread}
}

// expandSearch widens qp's window for its wait at now. The window only grows:
// a settings change that would narrow it leaves the current bounds in place.
func expandSearch(qp *QueuedPlayer, now time.Time, s Settings) {
	next := ratingWindow(qp.Rating, qp.WaitTime(now), qp.ExpansionRate, s)
	if next.Min < qp.Range.Min {
		qp.Range.Min = next.Min
	}
	if next.Max > qp.Range.Max {
		qp.Range.Max = next.Max
	}
}
