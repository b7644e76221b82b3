// Package client keeps a local model of a Traze server: the games it
// announces, the grid of each game and the lifecycle of local players.
package client

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"traze.dev/internal/protocol"
	"traze.dev/internal/transport"
)

const (
	DefaultDiscoveryTimeout = 15 * time.Second
	DefaultJoinTimeout      = 15 * time.Second
)

type options struct {
	log              *zap.SugaredLogger
	metrics          *Metrics
	discoveryTimeout time.Duration
	joinTimeout      time.Duration
}

type Option func(*options)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDiscoveryTimeout bounds how long Games waits for the first
// announcement.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(o *options) { o.discoveryTimeout = d }
}

// WithJoinTimeout bounds how long Join waits for the server to answer.
func WithJoinTimeout(d time.Duration) Option {
	return func(o *options) { o.joinTimeout = d }
}

// World is the registry of games announced by the server. Each game is
// created once, on its first announcement, and kept for the life of the
// World.
type World struct {
	mux     *transport.Mux
	opts    options
	log     *zap.SugaredLogger
	metrics *Metrics

	mu        sync.RWMutex
	games     map[string]*Game
	ready     chan struct{}
	done      chan struct{}
	announced bool
	closed    bool
}

const worldKey = "world"

// NewWorld subscribes to game announcements on mux. The World owns mux
// and closes it in Close.
func NewWorld(mux *transport.Mux, opts ...Option) (*World, error) {
	o := options{
		discoveryTimeout: DefaultDiscoveryTimeout,
		joinTimeout:      DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}
	if o.discoveryTimeout <= 0 {
		o.discoveryTimeout = DefaultDiscoveryTimeout
	}
	if o.joinTimeout <= 0 {
		o.joinTimeout = DefaultJoinTimeout
	}

	w := &World{
		mux:     mux,
		opts:    o,
		log:     o.log,
		metrics: o.metrics,
		games:   map[string]*Game{},
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	if _, err := mux.Subscribe(protocol.TopicGames, worldKey, w.onGames); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	return w, nil
}

func (w *World) Metrics() *Metrics { return w.metrics }

func (w *World) malformed(err error) {
	w.metrics.malformed()
	w.log.Warnw("dropping malformed event", "err", err)
}

func (w *World) onGames(msg transport.Message) {
	infos, err := protocol.DecodeGames(msg.Topic, msg.Payload)
	if err != nil {
		w.malformed(err)
		return
	}

	var created []*Game
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	for _, info := range infos {
		g, ok := w.games[info.Name]
		if !ok {
			g = newGame(w, info.Name)
			w.games[info.Name] = g
			created = append(created, g)
		}
		g.setActive(info.ActivePlayers)
	}
	if !w.announced {
		w.announced = true
		close(w.ready)
	}
	w.mu.Unlock()
	w.metrics.applied()

	for _, g := range created {
		if err := g.subscribe(); err != nil {
			w.log.Warnw("game subscription failed", "game", g.name, "err", err)
			continue
		}
		w.log.Infow("game discovered", "game", g.name, "active", g.ActivePlayers())
	}
}

// Games returns the known games ordered by name. Before the first
// announcement it waits up to the discovery timeout and then fails with
// ErrNotConnected.
func (w *World) Games(ctx context.Context) ([]*Game, error) {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	timer := time.NewTimer(w.opts.discoveryTimeout)
	defer timer.Stop()
	select {
	case <-w.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
		return nil, ErrClosed
	case <-timer.C:
		select {
		case <-w.ready:
		default:
			return nil, fmt.Errorf("no games announced within %s: %w", w.opts.discoveryTimeout, ErrNotConnected)
		}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Game, 0, len(w.games))
	for _, g := range w.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// Game looks up a game by name. An empty name picks the game with the most
// active players, ties broken by name.
func (w *World) Game(ctx context.Context, name string) (*Game, error) {
	games, err := w.Games(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		var best *Game
		for _, g := range games {
			if best == nil || g.ActivePlayers() > best.ActivePlayers() {
				best = g
			}
		}
		if best == nil {
			return nil, fmt.Errorf("no games running: %w", ErrUnknownGame)
		}
		return best, nil
	}
	for _, g := range games {
		if g.name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("game %q: %w", name, ErrUnknownGame)
}

// Close stops all subscriptions and closes the underlying transport.
// Blocked Games and Join calls return ErrClosed.
func (w *World) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()
	return w.mux.Close()
}
