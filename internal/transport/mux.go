package transport

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Mux fans broker messages out to keyed handlers. Each topic filter is
// subscribed on the broker at most once no matter how many components
// listen on it, and registering the same key twice for a topic is a no-op.
type Mux struct {
	broker Broker
	log    *zap.SugaredLogger

	mu     sync.Mutex
	routes map[string]*route
	taps   []Handler
	closed bool
}

type route struct {
	keys     []string
	handlers map[string]Handler
}

func NewMux(b Broker, log *zap.SugaredLogger) *Mux {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Mux{
		broker: b,
		log:    log,
		routes: map[string]*route{},
	}
}

// Subscribe registers h under key for topic. It returns false when key was
// already registered for topic; the existing handler is kept.
func (m *Mux) Subscribe(topic, key string, h Handler) (bool, error) {
	if topic == "" || key == "" || h == nil {
		return false, fmt.Errorf("subscribe: empty topic, key or handler")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrClosed
	}
	r, exists := m.routes[topic]
	if exists {
		if _, dup := r.handlers[key]; dup {
			m.mu.Unlock()
			return false, nil
		}
		r.keys = append(r.keys, key)
		r.handlers[key] = h
		m.mu.Unlock()
		return true, nil
	}
	r = &route{keys: []string{key}, handlers: map[string]Handler{key: h}}
	m.routes[topic] = r
	m.mu.Unlock()

	// The broker call may block on a network round trip; never hold mu
	// across it or delivery on the same connection can stall.
	if err := m.broker.Subscribe(topic, m.dispatcher(topic)); err != nil {
		m.mu.Lock()
		if m.routes[topic] == r {
			delete(m.routes, topic)
		}
		m.mu.Unlock()
		return false, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	m.log.Debugw("subscribed", "topic", topic, "key", key)
	return true, nil
}

// Unsubscribe removes key from topic and drops the broker subscription once
// no handler is left.
func (m *Mux) Unsubscribe(topic, key string) error {
	m.mu.Lock()
	r, ok := m.routes[topic]
	if !ok || m.closed {
		m.mu.Unlock()
		return nil
	}
	if _, ok := r.handlers[key]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(r.handlers, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	last := len(r.handlers) == 0
	if last {
		delete(m.routes, topic)
	}
	m.mu.Unlock()

	if !last {
		return nil
	}
	if err := m.broker.Unsubscribe(topic); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	m.log.Debugw("unsubscribed", "topic", topic)
	return nil
}

// Tap registers h to observe every inbound message before it is routed.
func (m *Mux) Tap(h Handler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	m.taps = append(m.taps, h)
	m.mu.Unlock()
}

func (m *Mux) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := m.broker.Publish(topic, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (m *Mux) PublishJSON(topic string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	return m.Publish(topic, b)
}

// Topics lists the topic filters currently subscribed on the broker.
func (m *Mux) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.routes))
	for t := range m.routes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (m *Mux) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.routes = map[string]*route{}
	m.taps = nil
	m.mu.Unlock()
	return m.broker.Close()
}

func (m *Mux) dispatcher(topic string) Handler {
	return func(msg Message) {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		taps := append([]Handler(nil), m.taps...)
		var hs []Handler
		if r, ok := m.routes[topic]; ok {
			hs = make([]Handler, 0, len(r.keys))
			for _, k := range r.keys {
				hs = append(hs, r.handlers[k])
			}
		}
		m.mu.Unlock()

		for _, h := range taps {
			m.call(h, msg)
		}
		for _, h := range hs {
			m.call(h, msg)
		}
	}
}

// call isolates one handler: a panic is logged and delivery continues.
func (m *Mux) call(h Handler, msg Message) {
	defer func() {
		if err := recover(); err != nil {
			m.log.Warnw("handler panic", "topic", msg.Topic, "err", err, "stack", string(debug.Stack()))
		}
	}()
	h(msg)
}
