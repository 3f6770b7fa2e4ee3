package domain

import (
	"sort"
	"time"
)

// ComputeLeaderboard aggregates submissions into a ranked board. It is a pure
// projection: identical input always yields identical output, so concurrent
// recomputations are free to race and discard duplicates.
//
// Order: total score descending, then total time ascending (faster wins),
// then user ID ascending so presentation stays stable across recomputes.
func ComputeLeaderboard(submissions []AnswerSubmission) []LeaderboardEntry {
	totals := make(map[string]*LeaderboardEntry)
	for _, sub := range submissions {
		entry, ok := totals[sub.UserID]
		if !ok {
			entry = &LeaderboardEntry{UserID: sub.UserID}
			totals[sub.UserID] = entry
		}
		entry.TotalScore += sub.Score
		entry.TotalTimeMs += sub.ResponseLatencyMs
	}

	entries := make([]LeaderboardEntry, 0, len(totals))
	for _, entry := range totals {
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if entries[i].TotalTimeMs != entries[j].TotalTimeMs {
			return entries[i].TotalTimeMs < entries[j].TotalTimeMs
		}
		return entries[i].UserID < entries[j].UserID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// NewLeaderboard wraps computed entries into a timestamped snapshot.
func NewLeaderboard(quizID, sessionID string, scope LeaderboardScope, submissions []AnswerSubmission, at time.Time) Leaderboard {
	return Leaderboard{
		QuizID:    quizID,
		SessionID: sessionID,
		Scope:     scope,
		Entries:   ComputeLeaderboard(submissions),
		UpdatedAt: at,
	}
}
