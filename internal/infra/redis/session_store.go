package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"live-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// casScript is the compare-and-swap behind Update: the write happens only
// when the stored version still matches. Returns -1 when the session is
// missing, 0 on a version mismatch, 1 on success.
const casScript = `
local cur = redis.call('GET', KEYS[1])
if not cur then return -1 end
if cur ~= ARGV[1] then return 0 end
if tonumber(ARGV[4]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[4])
  redis.call('SET', KEYS[2], ARGV[3], 'EX', ARGV[4])
else
  redis.call('SET', KEYS[1], ARGV[2])
  redis.call('SET', KEYS[2], ARGV[3])
end
return 1
`

// claimScript swaps the active marker to a new session only when it still
// holds the stale value the caller inspected. Returns 1 on swap, 0 when
// another creator got there first.
const claimScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  if tonumber(ARGV[3]) > 0 then
    redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
  else
    redis.call('SET', KEYS[1], ARGV[2])
  end
  return 1
end
return 0
`

// SessionStore keeps quiz sessions in Redis so multiple service instances
// observe the same question pointer. The version token lives in its own key
// so the CAS script compares plain strings.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	cas    *redis.Script
	claim  *redis.Script
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		cas:    redis.NewScript(casScript),
		claim:  redis.NewScript(claimScript),
	}
}

// Create enforces the single-active-session rule through the
// quiz:active:<quizID> marker. The session document is written before the
// marker is claimed, so a marker observed by a competing Create always
// references a readable document; a marker whose session is gone or ended is
// taken over only by a conditional swap, never a blind overwrite.
func (s *SessionStore) Create(ctx context.Context, session domain.QuizSession) error {
	if err := s.write(ctx, session); err != nil {
		return err
	}

	activeKey := s.activeKey(session.QuizID)
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := s.client.SetNX(ctx, activeKey, session.ID, s.ttl).Result()
		if err != nil {
			return storeErr("mark active session", err)
		}
		if ok {
			return nil
		}

		existingID, err := s.client.Get(ctx, activeKey).Result()
		if err == redis.Nil {
			// Marker expired between SetNX and Get; race again.
			continue
		}
		if err != nil {
			return storeErr("read active marker", err)
		}

		existing, err := s.Get(ctx, existingID)
		if err == nil && existing.IsActive() {
			s.discard(ctx, session.ID)
			return domain.ErrAlreadyActive
		}
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return err
		}

		// Marker references an expired or ended run; swap it only if it is
		// still the one we inspected.
		swapped, err := s.claim.Run(ctx, s.client, []string{activeKey},
			existingID, session.ID, int64(s.ttl.Seconds())).Int64()
		if err != nil {
			return storeErr("claim active marker", err)
		}
		if swapped == 1 {
			return nil
		}
		// Lost the swap to another creator; re-inspect the marker.
	}

	s.discard(ctx, session.ID)
	return domain.ErrAlreadyActive
}

// discard drops the document of a session whose Create lost the marker; its
// ID is never handed out.
func (s *SessionStore) discard(ctx context.Context, sessionID string) {
	_ = s.client.Del(ctx, s.dataKey(sessionID), s.versionKey(sessionID)).Err()
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (domain.QuizSession, error) {
	raw, err := s.client.Get(ctx, s.dataKey(sessionID)).Result()
	if err == redis.Nil {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, storeErr("load session", err)
	}
	var session domain.QuizSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return domain.QuizSession{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) GetActiveByQuiz(ctx context.Context, quizID string) (domain.QuizSession, bool, error) {
	sessionID, err := s.client.Get(ctx, s.activeKey(quizID)).Result()
	if err == redis.Nil {
		return domain.QuizSession{}, false, nil
	}
	if err != nil {
		return domain.QuizSession{}, false, storeErr("read active marker", err)
	}
	session, err := s.Get(ctx, sessionID)
	if err == domain.ErrSessionNotFound {
		return domain.QuizSession{}, false, nil
	}
	if err != nil {
		return domain.QuizSession{}, false, err
	}
	if !session.IsActive() {
		return domain.QuizSession{}, false, nil
	}
	return session, true, nil
}

func (s *SessionStore) Update(ctx context.Context, session domain.QuizSession, expectedVersion int64) (domain.QuizSession, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return domain.QuizSession{}, fmt.Errorf("encode session: %w", err)
	}

	keys := []string{s.versionKey(session.ID), s.dataKey(session.ID)}
	args := []interface{}{
		strconv.FormatInt(expectedVersion, 10),
		strconv.FormatInt(session.Version, 10),
		string(payload),
		int64(s.ttl.Seconds()),
	}
	res, err := s.cas.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return domain.QuizSession{}, storeErr("session cas", err)
	}
	switch res {
	case -1:
		return domain.QuizSession{}, domain.ErrSessionNotFound
	case 0:
		return domain.QuizSession{}, domain.ErrVersionConflict
	}

	if session.IsEnded() {
		// Free the quiz for a future run; the session row stays for reads.
		_ = s.client.Del(ctx, s.activeKey(session.QuizID)).Err()
	} else if s.ttl > 0 {
		// A run that keeps moving must not lose its marker to the TTL.
		_ = s.client.Expire(ctx, s.activeKey(session.QuizID), s.ttl).Err()
	}
	return session, nil
}

func (s *SessionStore) write(ctx context.Context, session domain.QuizSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.dataKey(session.ID), payload, s.ttl)
	pipe.Set(ctx, s.versionKey(session.ID), strconv.FormatInt(session.Version, 10), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return storeErr("write session", err)
	}
	return nil
}

func (s *SessionStore) dataKey(sessionID string) string {
	return "quiz:session:" + sessionID
}

func (s *SessionStore) versionKey(sessionID string) string {
	return "quiz:session:" + sessionID + ":ver"
}

func (s *SessionStore) activeKey(quizID string) string {
	return "quiz:active:" + quizID
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}
