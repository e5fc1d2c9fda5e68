package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists sessions keyed by call id. Load returns (nil, nil) when no
// session exists for the call.
type Store interface {
	Load(ctx context.Context, callID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

const sessionKeyPrefix = "voice:session:"

// RedisStore keeps sessions in Redis with a TTL tied to the call lifetime.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a session store backed by Redis.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(callID string) string {
	return sessionKeyPrefix + callID
}

// Load retrieves a session from Redis.
func (s *RedisStore) Load(ctx context.Context, callID string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(callID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("session: get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &sess, nil
}

// Save persists the session, merging in sub-keys another process may have
// committed since this turn read its copy. A form submission completing in
// the background between our read and write must survive the write.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.CallID == "" {
		return fmt.Errorf("session: call_id required")
	}

	stored, err := s.Load(ctx, sess.CallID)
	if err != nil {
		return err
	}
	if stored != nil {
		mergeCommitted(sess, stored)
	}

	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.CallID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: set: %w", err)
	}
	return nil
}

// mergeCommitted folds newer committed sub-keys from the stored copy into the
// session about to be written. Only additive, externally-completed facts are
// merged: form submissions, delivered notifications, and a booking that a
// concurrent turn already confirmed. Conversation fields always take the
// in-flight turn's value.
func mergeCommitted(dst, stored *Session) {
	if dst.AppointmentID == "" && stored.AppointmentID != "" {
		dst.AppointmentID = stored.AppointmentID
		dst.AppointmentCreated = true
	}

	for token, sub := range stored.FormTokens {
		cur, ok := dst.FormTokens[token]
		if !ok {
			if dst.FormTokens == nil {
				dst.FormTokens = make(map[string]FormSubmission)
			}
			dst.FormTokens[token] = sub
			continue
		}
		if cur.SubmittedAt == nil && sub.SubmittedAt != nil {
			dst.FormTokens[token] = sub
		}
	}

	for key, at := range stored.NotificationsSent {
		if _, ok := dst.NotificationsSent[key]; !ok {
			if dst.NotificationsSent == nil {
				dst.NotificationsSent = make(map[string]time.Time)
			}
			dst.NotificationsSent[key] = at
		}
	}
}

// MemoryStore is an in-process store for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Load returns a deep copy so callers mutate their own view, matching the
// read-modify-write shape of the Redis store.
func (s *MemoryStore) Load(ctx context.Context, callID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.sessions[callID]
	if !ok {
		return nil, nil
	}
	return copySession(stored)
}

// Save applies the same merge discipline as the Redis store.
func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.CallID == "" {
		return fmt.Errorf("session: call_id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.sessions[sess.CallID]; ok {
		mergeCommitted(sess, stored)
	}
	sess.UpdatedAt = time.Now().UTC()
	cp, err := copySession(sess)
	if err != nil {
		return err
	}
	s.sessions[sess.CallID] = cp
	return nil
}

func copySession(src *Session) (*Session, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("session: copy: %w", err)
	}
	var dst Session
	if err := json.Unmarshal(data, &dst); err != nil {
		return nil, fmt.Errorf("session: copy: %w", err)
	}
	return &dst, nil
}
