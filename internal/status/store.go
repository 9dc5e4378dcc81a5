// Package status implements the per-user orchestration status slot: a
// single mutable record per user with last-write-wins semantics. A new
// generation request overwrites the slot even while an earlier run is
// still executing; whichever run writes last owns the terminal state.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/midistudio/api/internal/model"
)

// ErrStatusNotFound is returned when no slot exists for a user.
var ErrStatusNotFound = errors.New("status not found")

// Store is the keyed status-slot record store.
type Store interface {
	// Set replaces the user's slot with the given document.
	Set(ctx context.Context, userID string, st *model.OrchestrationStatus) error
	// Merge applies a partial update to the user's slot. Merging the
	// same patch twice leaves the slot unchanged.
	Merge(ctx context.Context, userID string, patch *model.StatusPatch) error
	// Get reads the current slot. Returns ErrStatusNotFound when the
	// user has never submitted a request.
	Get(ctx context.Context, userID string) (*model.OrchestrationStatus, error)
	// Subscribe streams slot snapshots as they are written. The returned
	// cancel func must be called to release the subscription.
	Subscribe(ctx context.Context, userID string) (<-chan *model.OrchestrationStatus, func(), error)
}

// RedisStore implements Store with one Redis key per user holding the
// JSON document, publishing every write to a per-user pub/sub channel.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed status store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func statusKey(userID string) string {
	return fmt.Sprintf("status:%s", userID)
}

// ChannelPattern is the pub/sub pattern covering every user's status
// channel, used by the WebSocket bridge.
const ChannelPattern = "status:*"

// UserFromChannel extracts the user ID from a status channel name.
func UserFromChannel(channel string) string {
	return channel[len("status:"):]
}

func (s *RedisStore) Set(ctx context.Context, userID string, st *model.OrchestrationStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := s.redis.Set(ctx, statusKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}

	s.publish(ctx, userID, data)
	return nil
}

func (s *RedisStore) Merge(ctx context.Context, userID string, patch *model.StatusPatch) error {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	patch.Apply(st)
	return s.Set(ctx, userID, st)
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*model.OrchestrationStatus, error) {
	data, err := s.redis.Get(ctx, statusKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("failed to read status: %w", err)
	}

	var st model.OrchestrationStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}

	return &st, nil
}

func (s *RedisStore) Subscribe(ctx context.Context, userID string) (<-chan *model.OrchestrationStatus, func(), error) {
	sub := s.redis.Subscribe(ctx, statusKey(userID))

	// Confirm the subscription before handing out the channel so no
	// write published after Subscribe returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *model.OrchestrationStatus, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var st model.OrchestrationStatus
			if err := json.Unmarshal([]byte(msg.Payload), &st); err != nil {
				log.Printf("[Status] dropping malformed snapshot for %s: %v", userID, err)
				continue
			}
			select {
			case out <- &st:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		if err := sub.Close(); err != nil {
			log.Printf("[Status] failed to close subscription for %s: %v", userID, err)
		}
	}

	return out, cancel, nil
}

// publish notifies subscribers of a slot write. Publish failures are
// logged and swallowed; the durable write already succeeded and pollers
// will still observe the new state.
func (s *RedisStore) publish(ctx context.Context, userID string, data []byte) {
	if err := s.redis.Publish(ctx, statusKey(userID), data).Err(); err != nil {
		log.Printf("[Status] failed to publish update for %s: %v", userID, err)
	}
}
