package client

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"traze.dev/internal/protocol"
	"traze.dev/internal/transport"
	"traze.dev/internal/transport/loopback"
)

func newTestWorld(t *testing.T, opts ...Option) (*World, *loopback.Broker) {
	t.Helper()
	b := loopback.New()
	log := zaptest.NewLogger(t).Sugar()
	w, err := NewWorld(transport.NewMux(b, log), append([]Option{WithLogger(log), WithMetrics(NewMetrics())}, opts...)...)
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, b
}

func publish(t *testing.T, b *loopback.Broker, topic string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := b.Publish(topic, raw); err != nil {
		t.Fatalf("publish %s: %v", topic, err)
	}
}

// fakeServer answers join requests the way a Traze server does: a fresh id
// and token, sent to the requester's own player topic.
type fakeServer struct {
	t     *testing.T
	b     *loopback.Broker
	spawn protocol.Location

	mu     sync.Mutex
	nextID int
	joins  []protocol.JoinMsg
	silent bool
}

func startServer(t *testing.T, b *loopback.Broker, spawn protocol.Location) *fakeServer {
	t.Helper()
	s := &fakeServer{t: t, b: b, spawn: spawn, nextID: 1}
	if err := b.Subscribe(protocol.TopicJoin, s.onJoin); err != nil {
		t.Fatalf("server subscribe: %v", err)
	}
	return s
}

func (s *fakeServer) onJoin(msg transport.Message) {
	var req protocol.JoinMsg
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		s.t.Errorf("server: bad join: %v", err)
		return
	}
	game := strings.Split(msg.Topic, "/")[1]

	s.mu.Lock()
	s.joins = append(s.joins, req)
	if s.silent {
		s.mu.Unlock()
		return
	}
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	publish(s.t, s.b, protocol.PlayerInfoTopic(game, req.MQTTClientName), protocol.JoinAck{
		ID:              id,
		Name:            req.Name,
		SecretUserToken: "secret-" + req.Name,
		Position:        s.spawn,
	})
}

func (s *fakeServer) setSilent(v bool) {
	s.mu.Lock()
	s.silent = v
	s.mu.Unlock()
}

type recorder struct {
	mu      sync.Mutex
	updates []View
	deaths  []Death
}

func (r *recorder) OnUpdate(v View) {
	r.mu.Lock()
	r.updates = append(r.updates, v)
	r.mu.Unlock()
}

func (r *recorder) OnDeath(d Death) {
	r.mu.Lock()
	r.deaths = append(r.deaths, d)
	r.mu.Unlock()
}

func (r *recorder) counts() (updates, deaths int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates), len(r.deaths)
}

func (r *recorder) lastUpdate() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func (r *recorder) lastDeath() Death {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deaths[len(r.deaths)-1]
}

func announce(t *testing.T, b *loopback.Broker, games ...protocol.GameInfo) {
	t.Helper()
	if games == nil {
		games = []protocol.GameInfo{}
	}
	publish(t, b, protocol.TopicGames, games)
}

// emptyGrid builds a w x h snapshot with the given bikes painted in.
func emptyGrid(w, h int, bikes ...protocol.Bike) protocol.Grid {
	g := protocol.Grid{Width: w, Height: h, Tiles: make([][]int, w), Bikes: bikes}
	for x := range g.Tiles {
		g.Tiles[x] = make([]int, h)
	}
	if g.Bikes == nil {
		g.Bikes = []protocol.Bike{}
	}
	for _, b := range bikes {
		g.Tiles[b.CurrentLocation.X()][b.CurrentLocation.Y()] = b.PlayerID
		for _, l := range b.Trail {
			g.Tiles[l.X()][l.Y()] = b.PlayerID
		}
	}
	return g
}
