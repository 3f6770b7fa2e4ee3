package redis

import (
	"context"
	"strconv"
	"time"

	"live-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CursorStore keeps self-paced cursors as a Redis hash per (quiz, user).
// Cursors are ephemeral progression state, so they carry a TTL; an expired
// cursor simply means the participant begins again.
type CursorStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCursorStore(client *redis.Client, ttl time.Duration) *CursorStore {
	return &CursorStore{client: client, ttl: ttl}
}

func (s *CursorStore) Get(ctx context.Context, quizID, userID string) (domain.Cursor, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(quizID, userID)).Result()
	if err != nil {
		return domain.Cursor{}, false, storeErr("load cursor", err)
	}
	if len(fields) == 0 {
		return domain.Cursor{}, false, nil
	}

	index, _ := strconv.Atoi(fields["index"])
	startedMs, _ := strconv.ParseInt(fields["startedAtMs"], 10, 64)
	return domain.Cursor{
		QuizID:        quizID,
		UserID:        userID,
		QuestionIndex: index,
		StartedAt:     time.UnixMilli(startedMs).UTC(),
	}, true, nil
}

func (s *CursorStore) Put(ctx context.Context, cursor domain.Cursor) error {
	key := s.key(cursor.QuizID, cursor.UserID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"index", strconv.Itoa(cursor.QuestionIndex),
		"startedAtMs", strconv.FormatInt(cursor.StartedAt.UnixMilli(), 10),
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("store cursor", err)
	}
	return nil
}

func (s *CursorStore) key(quizID, userID string) string {
	return "quiz:cursor:" + quizID + ":" + userID
}
