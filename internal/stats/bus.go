package stats

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher is a fire-and-forget broadcast channel. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Channel is the bus channel for one agent instance's stats.
func Channel(instanceID string) string {
	return "campaign:" + instanceID + ":stats"
}

// RedisBus publishes over Redis pub/sub for consumers in other processes.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus { return &RedisBus{rdb: rdb} }

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Hub fans out in-process to SSE subscribers. Slow subscribers miss updates
// rather than block publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
	buf  int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[chan []byte]struct{}), buf: buffer}
}

// Subscribe returns a receive channel for channel and a cancel func that
// must be called to release it.
func (h *Hub) Subscribe(channel string) (<-chan []byte, func()) {
	ch := make(chan []byte, h.buf)
	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[chan []byte]struct{})
	}
	h.subs[channel][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[channel], ch)
			if len(h.subs[channel]) == 0 {
				delete(h.subs, channel)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (h *Hub) subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// MultiBus publishes to every bus and joins their errors.
type MultiBus []Publisher

func (m MultiBus) Publish(ctx context.Context, channel string, payload []byte) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
