package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"traze.dev/internal/client"
	"traze.dev/internal/persistence/indexdb"
)

// Journal receives one record per finished life.
type Journal interface {
	RecordLife(indexdb.Life)
}

type RunnerOption func(*Runner)

func WithJournal(j Journal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

func WithLogger(l *zap.SugaredLogger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// Runner plays rounds with one player: join, steer on every update until
// the player dies, repeat.
type Runner struct {
	player  *client.Player
	policy  Policy
	journal Journal
	log     *zap.SugaredLogger

	deaths chan client.Death

	mu      sync.Mutex
	fresh   bool
	spawnX  int
	spawnY  int
	updates int
	lives   []client.Death
}

// NewRunner creates a player named name in g, steered by policy.
func NewRunner(g *client.Game, name string, policy Policy, opts ...RunnerOption) (*Runner, error) {
	if policy == nil {
		return nil, fmt.Errorf("runner: nil policy")
	}
	r := &Runner{
		policy: policy,
		deaths: make(chan client.Death, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = zap.NewNop().Sugar()
	}
	p, err := g.NewPlayer(name, r)
	if err != nil {
		return nil, err
	}
	r.player = p
	r.log = r.log.With("game", g.Name(), "player", name)
	return r, nil
}

func (r *Runner) Player() *client.Player { return r.player }

// Lives returns the deaths seen so far.
func (r *Runner) Lives() []client.Death {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]client.Death(nil), r.lives...)
}

// Play runs rounds lives, or until ctx ends when rounds is zero. Join
// timeouts end Play unless suppressTimeouts is set, in which case the round
// is skipped. The player is bailed and released when Play returns.
func (r *Runner) Play(ctx context.Context, rounds int, suppressTimeouts bool) (err error) {
	defer func() {
		if cerr := r.player.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for round := 1; rounds == 0 || round <= rounds; round++ {
		select {
		case <-r.deaths:
		default:
		}
		r.mu.Lock()
		r.fresh = true
		r.updates = 0
		r.mu.Unlock()

		if err := r.player.Join(ctx); err != nil {
			if suppressTimeouts && errors.Is(err, client.ErrNotConnected) {
				r.log.Warnw("join timed out, skipping round", "round", round)
				continue
			}
			return err
		}
		r.log.Infow("round started", "round", round, "id", r.player.ID())

		select {
		case d := <-r.deaths:
			r.log.Infow("round over", "round", round, "cause", d.Cause, "lived", d.Lived.Round(time.Millisecond))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Runner) OnUpdate(v client.View) {
	r.mu.Lock()
	if r.fresh {
		r.fresh = false
		r.spawnX, r.spawnY = v.X, v.Y
	}
	r.updates++
	r.mu.Unlock()

	s := State{
		X:      v.X,
		Y:      v.Y,
		Course: v.Course,
		Free:   r.player.Valid,
	}
	s.Moves = ValidMoves(v.X, v.Y, v.Course, r.player.Valid)
	c := r.policy.Next(s)
	if c == "" || !c.Valid() {
		return
	}
	if err := r.player.Steer(c); err != nil && !errors.Is(err, client.ErrNotJoined) {
		r.log.Warnw("steer failed", "course", c, "err", err)
	}
}

func (r *Runner) OnDeath(d client.Death) {
	now := time.Now()
	r.mu.Lock()
	r.lives = append(r.lives, d)
	life := indexdb.Life{
		Game:          d.Game,
		PlayerID:      d.ID,
		PlayerName:    d.Name,
		CorrelationID: r.player.CorrelationID(),
		SpawnX:        r.spawnX,
		SpawnY:        r.spawnY,
		JoinedAt:      now.Add(-d.Lived),
		DiedAt:        now,
		Cause:         d.Cause,
		Fragger:       d.Fragger,
		Frags:         d.Frags,
		Updates:       r.updates,
	}
	r.mu.Unlock()

	if r.journal != nil {
		r.journal.RecordLife(life)
	}
	select {
	case r.deaths <- d:
	default:
	}
}

var _ client.Listener = (*Runner)(nil)
