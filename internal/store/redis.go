package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jailfriend/go-call-infra/internal/session"
	"github.com/jailfriend/go-call-infra/internal/translate"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrSnapshotNotFound is returned for sessions this instance never saw or
// whose snapshot already expired.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

// RedisStore keeps ephemeral call-session snapshots and fans captions out
// across instances. Nothing here is a system of record: snapshots expire
// with their TTL and captions are fire-and-forget.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// SaveSnapshot stores the latest session state so that ops tooling and the
// UI layer on other instances can inspect in-flight calls.
func (s *RedisStore) SaveSnapshot(ctx context.Context, sess session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session snapshot")
	}

	key := "call:session:" + sess.SessionID
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save session snapshot")
	}

	return nil
}

// GetSnapshot fetches the last stored state for a session.
func (s *RedisStore) GetSnapshot(ctx context.Context, sessionID string) (*session.Session, error) {
	data, err := s.client.Get(ctx, "call:session:"+sessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSnapshotNotFound
		}
		return nil, errors.Wrap(err, "failed to get session snapshot")
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session snapshot")
	}

	return &sess, nil
}

// DeleteSnapshot drops a disposed session's snapshot.
func (s *RedisStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, "call:session:"+sessionID).Err(); err != nil {
		return errors.Wrap(err, "failed to delete session snapshot")
	}
	return nil
}

// PublishCaption broadcasts a caption to instances serving viewers of the
// same session.
func (s *RedisStore) PublishCaption(ctx context.Context, caption translate.Caption) error {
	data, err := json.Marshal(caption)
	if err != nil {
		return errors.Wrap(err, "failed to marshal caption")
	}

	channel := "call:captions:" + caption.Segment.SessionID
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		return errors.Wrap(err, "failed to publish caption")
	}

	return nil
}

// SubscribeCaptions streams captions published for one session until the
// context is canceled. Unreadable payloads are skipped.
func (s *RedisStore) SubscribeCaptions(ctx context.Context, sessionID string) (<-chan translate.Caption, error) {
	pubsub := s.client.Subscribe(ctx, "call:captions:"+sessionID)

	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to captions")
	}

	in := pubsub.Channel()
	out := make(chan translate.Caption)

	go func() {
		defer close(out)
		defer pubsub.Close()

		for msg := range in {
			var caption translate.Caption
			if err := json.Unmarshal([]byte(msg.Payload), &caption); err != nil {
				continue
			}
			select {
			case out <- caption:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
