package client

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"traze.dev/internal/protocol"
	"traze.dev/internal/transport"
)

// Game tracks one game instance: its grid, roster and active player count.
// It is created by the World the first time the game is announced.
type Game struct {
	name  string
	world *World
	grid  *Grid
	log   *zap.SugaredLogger

	mu      sync.RWMutex
	active  int
	roster  []protocol.PlayerEntry
	players map[*Player]struct{}
}

func newGame(w *World, name string) *Game {
	return &Game{
		name:    name,
		world:   w,
		grid:    NewGrid(),
		log:     w.log.With("game", name),
		players: map[*Player]struct{}{},
	}
}

func (g *Game) key() string { return "game:" + g.name }

func (g *Game) subscribe() error {
	subs := []struct {
		topic string
		h     transport.Handler
	}{
		{protocol.GridTopic(g.name), g.onGrid},
		{protocol.TickerTopic(g.name), g.onTicker},
		{protocol.PlayersTopic(g.name), g.onPlayers},
	}
	for _, s := range subs {
		if _, err := g.world.mux.Subscribe(s.topic, g.key(), s.h); err != nil {
			return fmt.Errorf("game %s: %w", g.name, err)
		}
	}
	return nil
}

func (g *Game) Name() string { return g.name }
func (g *Game) Grid() *Grid  { return g.grid }

// ActivePlayers is the count from the latest games announcement.
func (g *Game) ActivePlayers() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

func (g *Game) setActive(n int) {
	g.mu.Lock()
	g.active = n
	g.mu.Unlock()
}

// Roster returns the latest players announcement.
func (g *Game) Roster() []protocol.PlayerEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]protocol.PlayerEntry(nil), g.roster...)
}

// NewPlayer creates an unjoined player in this game. l may be nil.
func (g *Game) NewPlayer(name string, l Listener) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("new player: empty name")
	}
	p := newPlayer(g, name, l)
	if _, err := g.world.mux.Subscribe(p.ackTopic(p.corrID), p.key(), p.onJoinAck); err != nil {
		return nil, fmt.Errorf("new player %q: %w", name, err)
	}
	g.mu.Lock()
	g.players[p] = struct{}{}
	g.mu.Unlock()
	return p, nil
}

func (g *Game) detach(p *Player) {
	g.mu.Lock()
	delete(g.players, p)
	g.mu.Unlock()
}

func (g *Game) attached() []*Player {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Player, 0, len(g.players))
	for p := range g.players {
		out = append(out, p)
	}
	return out
}

func (g *Game) onGrid(msg transport.Message) {
	s, err := protocol.DecodeGrid(msg.Topic, msg.Payload)
	if err != nil {
		g.world.malformed(err)
		return
	}
	g.grid.Apply(s)
	g.world.metrics.applied()
	for _, p := range g.attached() {
		p.gridUpdated()
	}
}

func (g *Game) onTicker(msg transport.Message) {
	t, err := protocol.DecodeTicker(msg.Topic, msg.Payload)
	if err != nil {
		g.world.malformed(err)
		return
	}
	for _, id := range t.Eliminated() {
		g.grid.Eliminate(id)
	}
	g.world.metrics.applied()
	g.log.Debugw("ticker", "type", t.Type, "casualty", t.Casualty, "fragger", t.Fragger)
	for _, p := range g.attached() {
		p.tickerEvent(t)
	}
}

func (g *Game) onPlayers(msg transport.Message) {
	roster, err := protocol.DecodePlayers(msg.Topic, msg.Payload)
	if err != nil {
		g.world.malformed(err)
		return
	}
	g.mu.Lock()
	g.roster = roster
	g.mu.Unlock()
	g.world.metrics.applied()
	for _, p := range g.attached() {
		p.rosterUpdated(roster)
	}
}
