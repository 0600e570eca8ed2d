package profile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CachedStore is a read-through Redis cache in front of another Store.
// Profiles change rarely compared to how often the matcher scans them, so a
// short TTL keeps the database out of the hot path without serving stale
// availability for long.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
}

func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{inner: inner, client: client, ttl: ttl}
}

func (s *CachedStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	key := "call:profile:" + userID

	data, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var p Profile
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		// corrupt cache entry, fall through to the database
		log.Warn().Str("user_id", userID).Msg("Discarding unreadable cached profile")
	} else if err != redis.Nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Profile cache read failed, falling back to database")
	}

	p, err := s.inner.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to cache profile")
		}
	}

	return p, nil
}

// ListMatchable always hits the database: the candidate set is the thing
// that must reflect current availability flags.
func (s *CachedStore) ListMatchable(ctx context.Context, excludeUserID string, limit int) ([]*Profile, error) {
	return s.inner.ListMatchable(ctx, excludeUserID, limit)
}

// Invalidate drops the cached copy after the profile service reports a
// mutation (consumed from the platform's change feed).
func (s *CachedStore) Invalidate(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, "call:profile:"+userID).Err(); err != nil {
		return errors.Wrap(err, "failed to invalidate cached profile")
	}
	return nil
}
