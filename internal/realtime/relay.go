package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Scope selects who receives a broadcast.
type Scope string

const (
	ScopeRoom Scope = "room"
	ScopeAll  Scope = "all"
)

// Broadcast is one fan-out request: an encoded frame and its audience.
// MessageID is set for chat messages so that a session which already got
// the message from its join history is skipped.
type Broadcast struct {
	Scope     Scope           `json:"scope"`
	RoomID    string          `json:"roomId,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Frame     json.RawMessage `json:"frame"`
}

// Relay carries broadcasts to every hub instance, this one included.
// Hubs never deliver a broadcast locally except through their relay.
type Relay interface {
	Publish(ctx context.Context, b Broadcast) error
	// Subscribe installs the delivery callback. It must be called once before Publish.
	Subscribe(ctx context.Context, deliver func(Broadcast)) error
	Close() error
}

// localRelay delivers synchronously inside the publishing process.
type localRelay struct {
	mu      sync.RWMutex
	deliver func(Broadcast)
}

// NewLocalRelay returns a relay for a single-instance deployment.
func NewLocalRelay() Relay {
	return &localRelay{}
}

func (r *localRelay) Publish(_ context.Context, b Broadcast) error {
	r.mu.RLock()
	deliver := r.deliver
	r.mu.RUnlock()
	if deliver != nil {
		deliver(b)
	}
	return nil
}

func (r *localRelay) Subscribe(_ context.Context, deliver func(Broadcast)) error {
	r.mu.Lock()
	r.deliver = deliver
	r.mu.Unlock()
	return nil
}

func (r *localRelay) Close() error { return nil }

// redisRelay fans broadcasts out over a Redis pub/sub channel so that
// sessions connected to other instances receive them too. Redis delivers
// messages from one publisher in order, which keeps per-room ordering.
type redisRelay struct {
	client  *redis.Client
	channel string

	mu     sync.Mutex
	pubsub *redis.PubSub
}

// NewRedisRelay creates a relay on the given pub/sub channel.
func NewRedisRelay(client *redis.Client, channel string) Relay {
	return &redisRelay{client: client, channel: channel}
}

func (r *redisRelay) Publish(ctx context.Context, b Broadcast) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *redisRelay) Subscribe(ctx context.Context, deliver func(Broadcast)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	r.mu.Lock()
	r.pubsub = pubsub
	r.mu.Unlock()

	go func() {
		for msg := range pubsub.Channel() {
			b, err := decodeBroadcast([]byte(msg.Payload))
			if err != nil {
				log.Printf("WARN: Dropping malformed relay message on %s: %v", r.channel, err)
				continue
			}
			deliver(b)
		}
		log.Printf("INFO: Relay subscription on %s closed", r.channel)
	}()
	return nil
}

func (r *redisRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub == nil {
		return nil
	}
	err := r.pubsub.Close()
	r.pubsub = nil
	return err
}

func decodeBroadcast(payload []byte) (Broadcast, error) {
	var b Broadcast
	if err := json.Unmarshal(payload, &b); err != nil {
		return Broadcast{}, err
	}
	switch b.Scope {
	case ScopeAll:
	case ScopeRoom:
		if b.RoomID == "" {
			return Broadcast{}, errors.New("room broadcast without roomId")
		}
	default:
		return Broadcast{}, errors.New("unknown broadcast scope")
	}
	if len(b.Frame) == 0 {
		return Broadcast{}, errors.New("broadcast without frame")
	}
	return b, nil
}
