// Package transport is the boundary between the game client and the
// publish/subscribe backend. A Broker is the raw connection; a Mux sits on
// top of it and owns the per-topic subscriptions shared by every game and
// player created from one world.
package transport

import (
	"errors"
	"strings"
	"time"
)

var ErrClosed = errors.New("transport closed")

type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Handler is invoked asynchronously, on the broker's delivery goroutine.
type Handler func(Message)

// Broker is a single connection to the messaging backend. Subscribe is
// called at most once per topic filter by the Mux.
type Broker interface {
	Subscribe(topic string, h Handler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte) error
	Close() error
}

// Match reports whether topic matches the MQTT-style filter ("+" matches one
// level, a trailing "#" matches the rest).
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return i == len(fs)-1
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
