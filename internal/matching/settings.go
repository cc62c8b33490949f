package matching

import "time"

// Settings holds every matchmaking tunable. A Settings value is never mutated
// once handed to the engine; UpdateSettings swaps in a new one.
type Settings struct {
	TickInterval    time.Duration
	ConfirmTimeout  time.Duration
	PenaltyDuration time.Duration
	MatchRetention  time.Duration

	PremiumMultiplier float64
	GuildBonus        float64
	PartyBonus        float64

	BaseRatingRange int
	ExpansionRate   int
	ExpansionStep   time.Duration

	CrossPlay      bool
	MaxLatencyDiff time.Duration

	BalanceThreshold  float64
	FairnessThreshold float64

	MaxServerLoad      float64
	BaseLatency        time.Duration
	CrossRegionPenalty time.Duration

	MaxWaitTime        time.Duration
	MinWaitEstimate    time.Duration
	DefaultAverageWait time.Duration
	DefaultRating      int
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		TickInterval:    time.Second,
		ConfirmTimeout:  30 * time.Second,
		PenaltyDuration: 5 * time.Minute,
		MatchRetention:  time.Hour,

		PremiumMultiplier: 0.5,
		GuildBonus:        0.25,
		PartyBonus:        0.5,

		BaseRatingRange: 100,
		ExpansionRate:   50,
		ExpansionStep:   10 * time.Second,

		CrossPlay:      false,
		MaxLatencyDiff: 100 * time.Millisecond,

		BalanceThreshold:  500,
		FairnessThreshold: 0.7,

		MaxServerLoad:      0.9,
		BaseLatency:        50 * time.Millisecond,
		CrossRegionPenalty: 100 * time.Millisecond,

		MaxWaitTime:        5 * time.Minute,
		MinWaitEstimate:    5 * time.Second,
		DefaultAverageWait: 30 * time.Second,
		DefaultRating:      1500,
	}
}

// minFairness is the floor applied to FairnessThreshold; team matches are
// never accepted below it.
const minFairness = 0.7

func (s Settings) fairnessThreshold() float64 {
	if s.FairnessThreshold < minFairness {
		return minFairness
	}
	return s.FairnessThreshold
}
