// Package bus implements the notification bus: publish/subscribe by
// channel name, used for authentication lifecycle events and transport
// failure reports.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dataway-dev/dataway/internal/logging"
)

// Well-known channels.
const (
	ChannelAuth = "bltAuth"
	ChannelData = "bltData"
)

// Event types carried on the well-known channels.
const (
	EventEvaluate      = "evaluate"
	EventLogout        = "logout"
	EventAuthenticated = "fireauthenticated"
	EventLoginFailed   = "loginfailed"
	EventAuthFailed    = "auth_failed"
	EventConnected     = "connected"
	EventDisconnected  = "disconnected"
	EventUnavailable   = "unavailable"
)

const defaultBuffer = 16

// Event is one notification.
type Event struct {
	Channel string
	Type    string
	Data    map[string]any
	At      time.Time
}

// Bus routes events to channel subscribers. Delivery is non-blocking;
// when a subscriber's buffer is full the oldest pending event is dropped
// and the drop is logged.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[string]map[uint64]*Subscription
	nextID      uint64
}

// New constructs a bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		logger:      logger,
		subscribers: make(map[string]map[uint64]*Subscription),
	}
}

// Publish delivers an event to all subscribers of the channel.
func (b *Bus) Publish(channel, eventType string, data map[string]any) {
	if b == nil || channel == "" {
		return
	}
	event := Event{Channel: channel, Type: eventType, Data: data, At: time.Now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers[channel] {
		sub.deliver(event, b.logger)
	}
}

// Subscribe registers a subscriber for the given channel.
func (b *Bus) Subscribe(channel string, opts ...SubscriptionOption) *Subscription {
	cfg := subscriptionConfig{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		channel: channel,
		id:      b.nextID,
		name:    cfg.name,
		ch:      make(chan Event, cfg.buffer),
		bus:     b,
	}
	if _, ok := b.subscribers[channel]; !ok {
		b.subscribers[channel] = make(map[uint64]*Subscription)
	}
	b.subscribers[channel][sub.id] = sub
	return sub
}

// Shutdown closes all subscriptions.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for channel, subs := range b.subscribers {
		for id, sub := range subs {
			sub.closeLocked()
			delete(subs, id)
		}
		delete(b.subscribers, channel)
	}
}

// SubscriptionOption customises a subscription.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	buffer int
	name   string
}

// WithBuffer overrides the subscription channel buffer.
func WithBuffer(size int) SubscriptionOption {
	return func(cfg *subscriptionConfig) {
		if size > 0 {
			cfg.buffer = size
		}
	}
}

// WithName records an identifier used in drop warnings.
func WithName(name string) SubscriptionOption {
	return func(cfg *subscriptionConfig) { cfg.name = name }
}

// Subscription is one consumer listening on a channel. Closing it stops
// further deliveries.
type Subscription struct {
	channel string
	id      uint64
	name    string
	ch      chan Event
	bus     *Bus
	closed  atomic.Bool
	dropped atomic.Uint64
}

// C exposes the event channel.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped reports how many events were discarded due to a full buffer.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close removes the subscription and closes its channel.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if subs, ok := s.bus.subscribers[s.channel]; ok {
		delete(subs, s.id)
	}
	close(s.ch)
}

func (s *Subscription) closeLocked() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.ch)
}

func (s *Subscription) deliver(event Event, logger *zap.Logger) {
	if s.closed.Load() {
		return
	}

	select {
	case s.ch <- event:
		return
	default:
	}

	// Buffer full: drop the oldest pending event to keep the stream moving.
	select {
	case <-s.ch:
		s.recordDrop(logger)
	default:
	}
	select {
	case s.ch <- event:
	default:
		s.recordDrop(logger)
	}
}

func (s *Subscription) recordDrop(logger *zap.Logger) {
	count := s.dropped.Add(1)
	if logger != nil {
		name := s.name
		if name == "" {
			name = "subscription"
		}
		logger.Warn("dropped notification",
			logging.Channel(s.channel),
			zap.String("subscriber", name),
			zap.Uint64("dropped", count))
	}
}
