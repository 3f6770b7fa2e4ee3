package domain

import "time"

const (
	baseScore      = 1000
	decayPerSecond = 5
	minCorrect     = 100
	speedBonus     = 200
	speedBonusCap  = 30 // seconds
)

// ClampLatency converts the observed response latency into milliseconds,
// bounded to [0, time_limit*1000]. Negative values (client clock ahead of the
// question start) collapse to zero.
func ClampLatency(latency time.Duration, timeLimitSeconds int) int64 {
	ms := latency.Milliseconds()
	if ms < 0 {
		return 0
	}
	limit := int64(timeLimitSeconds) * 1000
	if limit > 0 && ms > limit {
		return limit
	}
	return ms
}

// ScoreAnswer computes the points for a single answer. It depends only on
// correctness and latency, never on other participants, so recomputing it is
// always safe. Whole elapsed seconds are used; sub-second remainders do not
// change the result.
func ScoreAnswer(correct bool, latencyMs int64) int {
	if !correct {
		return 0
	}
	elapsed := int(latencyMs / 1000)
	score := baseScore - decayPerSecond*elapsed
	if score < minCorrect {
		score = minCorrect
	}
	if elapsed < speedBonusCap {
		score += speedBonus
	}
	return score
}
