// Package events fans session and user notifications out over Redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

func SessionResponseChannel(sessionID string) string { return "session:" + sessionID + ":response" }
func SessionStatusChannel(sessionID string) string   { return "session:" + sessionID + ":status" }
func UserChannel(userID string) string               { return "user:" + userID + ":events" }

// Status is the payload published on a session status channel.
type Status struct {
	Type       string `json:"type"` // always "status"
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	ChunkIndex int64  `json:"chunk_index,omitempty"`
}

func NewStatus(status, message string, chunkIndex int64) Status {
	return Status{Type: "status", Status: status, Message: message, ChunkIndex: chunkIndex}
}

type Publisher interface {
	// Publish JSON-encodes payload (strings and []byte are sent as-is).
	Publish(ctx context.Context, channel string, payload any) error
}

type Subscription interface {
	Messages() <-chan string
	Close() error
}

type Bus interface {
	Publisher
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

func encode(payload any) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus { return &RedisBus{rdb: rdb} }

func (b *RedisBus) Publish(ctx context.Context, channel string, payload any) error {
	s, err := encode(payload)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, s).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channels...)
	// wait for the confirmation so no message published right after is lost
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		for m := range ps.Channel() {
			select {
			case out <- m.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &redisSub{ps: ps, out: out}, nil
}

type redisSub struct {
	ps  *redis.PubSub
	out chan string
}

func (s *redisSub) Messages() <-chan string { return s.out }
func (s *redisSub) Close() error            { return s.ps.Close() }

// MemoryBus delivers in-process; used in tests and single-node development.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySub
	log  []Published
}

type Published struct {
	Channel string
	Payload string
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{subs: map[string][]*memorySub{}} }

func (b *MemoryBus) Publish(_ context.Context, channel string, payload any) error {
	s, err := encode(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, Published{Channel: channel, Payload: s})
	for _, sub := range b.subs[channel] {
		select {
		case sub.out <- s:
		default: // slow subscriber drops, like redis pubsub
		}
	}
	return nil
}

// Published returns everything sent on channel so far.
func (b *MemoryBus) Published(channel string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, p := range b.log {
		if p.Channel == channel {
			out = append(out, p.Payload)
		}
	}
	return out
}

func (b *MemoryBus) Subscribe(_ context.Context, channels ...string) (Subscription, error) {
	sub := &memorySub{bus: b, channels: channels, out: make(chan string, 64)}
	b.mu.Lock()
	for _, ch := range channels {
		b.subs[ch] = append(b.subs[ch], sub)
	}
	b.mu.Unlock()
	return sub, nil
}

type memorySub struct {
	bus      *MemoryBus
	channels []string
	out      chan string
	once     sync.Once
}

func (s *memorySub) Messages() <-chan string { return s.out }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		for _, ch := range s.channels {
			list := s.bus.subs[ch]
			for i, x := range list {
				if x == s {
					s.bus.subs[ch] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
		s.bus.mu.Unlock()
		close(s.out)
	})
	return nil
}
