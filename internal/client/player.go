package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"traze.dev/internal/protocol"
	"traze.dev/internal/transport"
)

type State int

const (
	Unjoined State = iota
	Joining
	Alive
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joining:
		return "joining"
	case Alive:
		return "alive"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Death causes besides the ticker event types.
const (
	CauseBail     = "bail"
	CauseVanished = "vanished"
)

// View is what a listener sees of its player.
type View struct {
	ID     int
	Name   string
	Game   string
	X, Y   int
	Course protocol.Course
	Frags  int
}

// Death describes the end of one life. Cause is a ticker event type,
// CauseBail or CauseVanished.
type Death struct {
	ID      int
	Name    string
	Game    string
	Cause   string
	Fragger int
	X, Y    int
	Frags   int
	Lived   time.Duration
}

// Listener receives player notifications. Calls happen on the delivery
// goroutine of the transport (or the caller of Bail) and never while the
// player is locked, so a listener may call back into the player.
type Listener interface {
	// OnUpdate fires on join and whenever a snapshot changes the
	// player's position or course.
	OnUpdate(View)
	// OnDeath fires exactly once per life.
	OnDeath(Death)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Update func(View)
	Death  func(Death)
}

func (f ListenerFuncs) OnUpdate(v View) {
	if f.Update != nil {
		f.Update(v)
	}
}

func (f ListenerFuncs) OnDeath(d Death) {
	if f.Death != nil {
		f.Death(d)
	}
}

type position struct {
	x, y   int
	course protocol.Course
}

// Player is a local participant in one game. It moves through
// Unjoined -> Joining -> Alive and back to Unjoined on death or bail.
type Player struct {
	game     *Game
	name     string
	uid      string
	listener Listener
	log      *zap.SugaredLogger
	done     chan struct{}

	mu        sync.Mutex
	corrID    string
	requested bool
	state     State
	id        int
	secret    string
	pos       position
	notified  position
	lastSteer protocol.Course
	frags     int
	seen      bool
	joinedAt  time.Time
	joined    chan struct{}
	closed    bool
}

func newPlayer(g *Game, name string, l Listener) *Player {
	if l == nil {
		l = ListenerFuncs{}
	}
	uid := uuid.NewString()
	return &Player{
		game:     g,
		name:     name,
		uid:      uid,
		corrID:   uuid.NewString(),
		listener: l,
		log:      g.log.With("player", name),
		done:     make(chan struct{}),
		pos:      position{x: -1, y: -1},
	}
}

func (p *Player) key() string { return "player:" + p.uid }

func (p *Player) ackTopic(corr string) string { return protocol.PlayerInfoTopic(p.game.name, corr) }

func (p *Player) Name() string { return p.name }
func (p *Player) Game() *Game  { return p.game }

// CorrelationID identifies the latest join request on the wire. Every
// request after the first gets a fresh id.
func (p *Player) CorrelationID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.corrID
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Alive() bool { return p.State() == Alive }

// ID is the server-assigned id of the current life, zero when not alive.
func (p *Player) ID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// X is the current column, -1 when not alive.
func (p *Player) X() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos.x
}

// Y is the current row, -1 when not alive.
func (p *Player) Y() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos.y
}

func (p *Player) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Player) viewLocked() View {
	return View{
		ID:     p.id,
		Name:   p.name,
		Game:   p.game.name,
		X:      p.pos.x,
		Y:      p.pos.y,
		Course: p.pos.course,
		Frags:  p.frags,
	}
}

// Join requests a spawn and blocks until the server acknowledges it, ctx
// ends, or the join timeout passes. A timeout yields ErrNotConnected.
// Joining an alive player is a no-op; concurrent calls share one request.
func (p *Player) Join(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	switch p.state {
	case Alive:
		id := p.id
		p.mu.Unlock()
		p.log.Infow("already alive", "id", id)
		return nil
	case Joining:
		ch := p.joined
		p.mu.Unlock()
		return p.await(ctx, ch, false)
	}
	p.state = Joining
	ch := make(chan struct{})
	p.joined = ch
	prev := ""
	if p.requested {
		prev = p.corrID
		p.corrID = uuid.NewString()
	}
	p.requested = true
	corr := p.corrID
	p.mu.Unlock()

	if prev != "" {
		if err := p.rotateAck(prev, corr); err != nil {
			p.abortJoin(ch)
			return fmt.Errorf("join %s as %q: %w", p.game.name, p.name, err)
		}
	}

	msg := protocol.JoinMsg{Name: p.name, MQTTClientName: corr}
	if err := p.game.world.mux.PublishJSON(protocol.JoinTopic(p.game.name), msg); err != nil {
		p.abortJoin(ch)
		return fmt.Errorf("join %s as %q: %w", p.game.name, p.name, err)
	}
	p.log.Debugw("join requested", "corr", corr)
	return p.await(ctx, ch, true)
}

// rotateAck moves the acknowledgement subscription from the topic of the
// previous request to the one of the next. The new topic is subscribed
// before the request goes out so the answer cannot be missed.
func (p *Player) rotateAck(prev, next string) error {
	mux := p.game.world.mux
	if _, err := mux.Subscribe(p.ackTopic(next), p.key(), p.onJoinAck); err != nil {
		return err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		_ = mux.Unsubscribe(p.ackTopic(next), p.key())
		return ErrClosed
	}
	if err := mux.Unsubscribe(p.ackTopic(prev), p.key()); err != nil {
		p.log.Warnw("dropping previous join topic failed", "corr", prev, "err", err)
	}
	return nil
}

func (p *Player) await(ctx context.Context, ch chan struct{}, owner bool) error {
	timer := time.NewTimer(p.game.world.opts.joinTimeout)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		if owner && !p.abortJoin(ch) {
			return nil
		}
		return ctx.Err()
	case <-p.done:
		if owner && !p.abortJoin(ch) {
			return nil
		}
		return ErrClosed
	case <-p.game.world.done:
		if owner && !p.abortJoin(ch) {
			return nil
		}
		return ErrClosed
	case <-timer.C:
		if !owner {
			select {
			case <-ch:
				return nil
			default:
			}
			return fmt.Errorf("join %s as %q: %w", p.game.name, p.name, ErrNotConnected)
		}
		if !p.abortJoin(ch) {
			return nil
		}
		p.game.world.metrics.joinTimedOut()
		p.log.Warnw("join timed out", "after", p.game.world.opts.joinTimeout)
		return fmt.Errorf("join %s as %q: %w", p.game.name, p.name, ErrNotConnected)
	}
}

// abortJoin returns to Unjoined unless the acknowledgement for ch already
// arrived. It reports whether the join was abandoned.
func (p *Player) abortJoin(ch chan struct{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Joining || p.joined != ch {
		select {
		case <-ch:
			return false
		default:
			return true
		}
	}
	p.state = Unjoined
	p.joined = nil
	return true
}

func (p *Player) onJoinAck(msg transport.Message) {
	ack, err := protocol.DecodeJoinAck(msg.Topic, msg.Payload)
	if err != nil {
		p.game.world.malformed(err)
		return
	}

	p.mu.Lock()
	if msg.Topic != p.ackTopic(p.corrID) {
		p.mu.Unlock()
		p.log.Debugw("ignoring stale join ack", "topic", msg.Topic, "id", ack.ID)
		return
	}
	if p.state != Joining {
		state := p.state
		p.mu.Unlock()
		p.log.Debugw("ignoring join ack", "state", state, "id", ack.ID)
		return
	}
	p.state = Alive
	p.id = ack.ID
	p.secret = ack.SecretUserToken
	p.pos = position{x: ack.Position.X(), y: ack.Position.Y()}
	p.notified = p.pos
	p.lastSteer = ""
	p.frags = 0
	p.seen = false
	p.joinedAt = time.Now()
	close(p.joined)
	p.joined = nil
	v := p.viewLocked()
	p.mu.Unlock()

	p.game.world.metrics.joined()
	p.log.Infow("joined", "id", ack.ID, "x", v.X, "y", v.Y)
	p.listener.OnUpdate(v)
}

// Steer changes course. Repeating the last course sent in this life is not
// published again.
func (p *Player) Steer(c protocol.Course) error {
	if !c.Valid() {
		return fmt.Errorf("steer: invalid course %q", c)
	}
	p.mu.Lock()
	if p.state != Alive {
		p.mu.Unlock()
		return ErrNotJoined
	}
	if c == p.lastSteer {
		p.mu.Unlock()
		p.game.world.metrics.deduped()
		return nil
	}
	prev, id, secret := p.lastSteer, p.id, p.secret
	p.lastSteer = c
	p.mu.Unlock()

	topic := protocol.SteerTopic(p.game.name, strconv.Itoa(id))
	if err := p.game.world.mux.PublishJSON(topic, protocol.SteerMsg{Course: c, PlayerToken: secret}); err != nil {
		p.mu.Lock()
		if p.id == id && p.lastSteer == c {
			p.lastSteer = prev
		}
		p.mu.Unlock()
		return fmt.Errorf("steer %s: %w", c, err)
	}
	p.game.world.metrics.steered()
	return nil
}

// Bail leaves the game. The player is reset locally right after the
// request is sent and the death listener fires with CauseBail.
func (p *Player) Bail() error {
	p.mu.Lock()
	if p.state != Alive {
		p.mu.Unlock()
		return ErrNotJoined
	}
	id, secret := p.id, p.secret
	p.mu.Unlock()

	topic := protocol.BailTopic(p.game.name, strconv.Itoa(id))
	err := p.game.world.mux.PublishJSON(topic, protocol.BailMsg{PlayerToken: secret})

	p.mu.Lock()
	if p.state != Alive || p.id != id {
		// died while the request was in flight
		p.mu.Unlock()
		return err
	}
	d := p.dieLocked(CauseBail, 0)
	p.mu.Unlock()
	p.game.world.metrics.died()
	p.log.Infow("bailed", "id", id)
	p.listener.OnDeath(d)
	if err != nil {
		return fmt.Errorf("bail: %w", err)
	}
	return nil
}

// Valid reports whether (x, y) is a free cell while the player is alive.
func (p *Player) Valid(x, y int) bool {
	if !p.Alive() {
		return false
	}
	return p.game.grid.Free(x, y)
}

// Close bails if alive, stops listening and detaches from the game. A Join
// blocked on the player returns ErrClosed.
func (p *Player) Close() error {
	var err error
	if p.Alive() {
		if err = p.Bail(); err == ErrNotJoined {
			err = nil
		}
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return err
	}
	p.closed = true
	if p.state == Joining {
		p.state = Unjoined
		p.joined = nil
	}
	corr := p.corrID
	close(p.done)
	p.mu.Unlock()

	p.game.detach(p)
	if uerr := p.game.world.mux.Unsubscribe(p.ackTopic(corr), p.key()); uerr != nil && err == nil {
		err = uerr
	}
	return err
}

func (p *Player) gridUpdated() {
	p.mu.Lock()
	if p.state != Alive {
		p.mu.Unlock()
		return
	}
	b, ok := p.game.grid.Bike(p.id)
	if !ok {
		if !p.seen {
			p.mu.Unlock()
			return
		}
		d := p.dieLocked(CauseVanished, 0)
		p.mu.Unlock()
		p.game.world.metrics.died()
		p.log.Infow("bike vanished", "id", d.ID)
		p.listener.OnDeath(d)
		return
	}
	p.seen = true
	p.pos = position{x: b.X, y: b.Y, course: b.Course}
	if p.pos == p.notified {
		p.mu.Unlock()
		return
	}
	p.notified = p.pos
	v := p.viewLocked()
	p.mu.Unlock()
	p.listener.OnUpdate(v)
}

func (p *Player) tickerEvent(t protocol.Ticker) {
	p.mu.Lock()
	if p.state != Alive {
		p.mu.Unlock()
		return
	}
	hit := false
	for _, id := range t.Eliminated() {
		if id == p.id {
			hit = true
		}
	}
	if !hit {
		p.mu.Unlock()
		return
	}
	fragger := t.Fragger
	if fragger == p.id {
		fragger = t.Casualty
	}
	d := p.dieLocked(t.Type, fragger)
	p.mu.Unlock()
	p.game.world.metrics.died()
	p.log.Infow("died", "id", d.ID, "cause", d.Cause, "fragger", d.Fragger)
	p.listener.OnDeath(d)
}

func (p *Player) rosterUpdated(roster []protocol.PlayerEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Alive {
		return
	}
	for _, e := range roster {
		if e.ID == p.id {
			p.frags = e.Frags
			return
		}
	}
}

// dieLocked resets the player to Unjoined and describes the life that
// just ended.
func (p *Player) dieLocked(cause string, fragger int) Death {
	d := Death{
		ID:      p.id,
		Name:    p.name,
		Game:    p.game.name,
		Cause:   cause,
		Fragger: fragger,
		X:       p.pos.x,
		Y:       p.pos.y,
		Frags:   p.frags,
		Lived:   time.Since(p.joinedAt),
	}
	p.state = Unjoined
	p.id = 0
	p.secret = ""
	p.pos = position{x: -1, y: -1}
	p.notified = position{}
	p.lastSteer = ""
	p.frags = 0
	p.seen = false
	return d
}
