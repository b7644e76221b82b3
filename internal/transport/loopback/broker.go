// Package loopback is an in-process broker. Publish delivers synchronously
// to every matching subscription before it returns, which makes it the
// transport of choice for tests and for replaying recordings.
package loopback

import (
	"sync"
	"time"

	"traze.dev/internal/transport"
)

type Broker struct {
	mu        sync.Mutex
	subs      map[string]transport.Handler
	order     []string
	subCalls  map[string]int
	published []transport.Message
	closed    bool
}

func New() *Broker {
	return &Broker{
		subs:     map[string]transport.Handler{},
		subCalls: map[string]int{},
	}
}

func (b *Broker) Subscribe(topic string, h transport.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return transport.ErrClosed
	}
	b.subCalls[topic]++
	if _, ok := b.subs[topic]; !ok {
		b.order = append(b.order, topic)
	}
	b.subs[topic] = h
	return nil
}

func (b *Broker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[topic]; !ok {
		return nil
	}
	delete(b.subs, topic)
	for i, t := range b.order {
		if t == topic {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	msg := transport.Message{
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
		Received: time.Now(),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return transport.ErrClosed
	}
	b.published = append(b.published, msg)
	var hs []transport.Handler
	for _, filter := range b.order {
		if transport.Match(filter, topic) {
			hs = append(hs, b.subs[filter])
		}
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(msg)
	}
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[string]transport.Handler{}
	b.order = nil
	return nil
}

// SubscribeCalls reports how many times topic was subscribed on the broker.
func (b *Broker) SubscribeCalls(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subCalls[topic]
}

// Published returns every message published on a topic matching filter.
func (b *Broker) Published(filter string) []transport.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []transport.Message
	for _, m := range b.published {
		if transport.Match(filter, m.Topic) {
			out = append(out, m)
		}
	}
	return out
}
