package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscription struct {
	ch       chan *LocalMessage
	channels []string
	done     chan struct{}
	once     sync.Once
}

// LocalPubSub is an in-process fan-out pub/sub implementation.
// Slow subscribers lose messages instead of blocking publishers.
type LocalPubSub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	bufSize int
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subs:    make(map[string]map[*subscription]struct{}),
		bufSize: bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for s := range ps.subs[channel] {
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of messages for the given channels and a
// cancel function. The subscription also ends when ctx is done.
func (ps *LocalPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	s := &subscription{
		ch:       make(chan *LocalMessage, ps.bufSize),
		channels: channels,
		done:     make(chan struct{}),
	}

	ps.mu.Lock()
	for _, c := range channels {
		set, ok := ps.subs[c]
		if !ok {
			set = make(map[*subscription]struct{})
			ps.subs[c] = set
		}
		set[s] = struct{}{}
	}
	ps.mu.Unlock()

	cancel := func() { ps.unsubscribe(s) }
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-s.done:
		}
	}()
	return s.ch, cancel, nil
}

func (ps *LocalPubSub) unsubscribe(s *subscription) {
	s.once.Do(func() {
		ps.mu.Lock()
		for _, c := range s.channels {
			delete(ps.subs[c], s)
			if len(ps.subs[c]) == 0 {
				delete(ps.subs, c)
			}
		}
		ps.mu.Unlock()
		close(s.done)
		close(s.ch)
	})
}

// Subscribers returns the number of live subscriptions on channel.
func (ps *LocalPubSub) Subscribers(channel string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subs[channel])
}
