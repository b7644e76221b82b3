package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"traze.dev/internal/protocol"
)

func TestGamesTimesOutWithoutAnnouncement(t *testing.T) {
	const window = 150 * time.Millisecond
	w, _ := newTestWorld(t, WithDiscoveryTimeout(window))

	start := time.Now()
	_, err := w.Games(context.Background())
	elapsed := time.Since(start)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if elapsed < window {
		t.Fatalf("gave up early after %s", elapsed)
	}
	if elapsed > window+2*time.Second {
		t.Fatalf("waited far too long: %s", elapsed)
	}
}

func TestGamesHonorsContext(t *testing.T) {
	w, _ := newTestWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Games(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGamesDiscoveryIsIdempotent(t *testing.T) {
	w, b := newTestWorld(t)
	announce(t, b, protocol.GameInfo{Name: "b", ActivePlayers: 1}, protocol.GameInfo{Name: "a", ActivePlayers: 2})

	games, err := w.Games(context.Background())
	if err != nil {
		t.Fatalf("Games: %v", err)
	}
	if len(games) != 2 || games[0].Name() != "a" || games[1].Name() != "b" {
		t.Fatalf("games: %v", games)
	}
	first := games[1]

	announce(t, b, protocol.GameInfo{Name: "b", ActivePlayers: 5})
	games, _ = w.Games(context.Background())
	if len(games) != 2 {
		t.Fatalf("games are never dropped, got %d", len(games))
	}
	if games[1] != first {
		t.Fatalf("re-announcement created a second instance")
	}
	if first.ActivePlayers() != 5 {
		t.Fatalf("active players not refreshed: %d", first.ActivePlayers())
	}
	for _, topic := range []string{protocol.GridTopic("b"), protocol.TickerTopic("b"), protocol.PlayersTopic("b")} {
		if n := b.SubscribeCalls(topic); n != 1 {
			t.Fatalf("%s subscribed %d times", topic, n)
		}
	}
}

func TestEmptyAnnouncementCountsAsConnected(t *testing.T) {
	w, b := newTestWorld(t, WithDiscoveryTimeout(time.Second))
	announce(t, b)
	games, err := w.Games(context.Background())
	if err != nil || len(games) != 0 {
		t.Fatalf("games=%v err=%v", games, err)
	}
	if _, err := w.Game(context.Background(), ""); !errors.Is(err, ErrUnknownGame) {
		t.Fatalf("expected ErrUnknownGame, got %v", err)
	}
}

func TestGameLookup(t *testing.T) {
	w, b := newTestWorld(t)
	announce(t, b,
		protocol.GameInfo{Name: "quiet", ActivePlayers: 1},
		protocol.GameInfo{Name: "busy", ActivePlayers: 7},
		protocol.GameInfo{Name: "also-busy", ActivePlayers: 7},
	)

	g, err := w.Game(context.Background(), "")
	if err != nil || g.Name() != "also-busy" {
		t.Fatalf("busiest game: %v %v", g, err)
	}
	if g, err := w.Game(context.Background(), "quiet"); err != nil || g.Name() != "quiet" {
		t.Fatalf("named game: %v %v", g, err)
	}
	if _, err := w.Game(context.Background(), "nope"); !errors.Is(err, ErrUnknownGame) {
		t.Fatalf("expected ErrUnknownGame, got %v", err)
	}
}

func TestGridUpdatesReachGame(t *testing.T) {
	w, b := newTestWorld(t)
	announce(t, b, protocol.GameInfo{Name: "1"})
	g, _ := w.Game(context.Background(), "1")

	publish(t, b, protocol.GridTopic("1"), emptyGrid(3, 2, bikeAt(4, 2, 1, protocol.West)))
	if w, h := g.Grid().Size(); w != 3 || h != 2 {
		t.Fatalf("size = %dx%d", w, h)
	}
	// Another game's snapshot does not leak in.
	announce(t, b, protocol.GameInfo{Name: "1"}, protocol.GameInfo{Name: "2"})
	publish(t, b, protocol.GridTopic("2"), emptyGrid(9, 9))
	if w, _ := g.Grid().Size(); w != 3 {
		t.Fatalf("game 1 picked up game 2's grid")
	}

	publish(t, b, protocol.TickerTopic("1"), protocol.Ticker{Type: protocol.TickerSuicide, Casualty: 4})
	if _, ok := g.Grid().Bike(4); ok {
		t.Fatalf("ticker elimination not applied")
	}
}

func TestWorldClose(t *testing.T) {
	w, b := newTestWorld(t)
	announce(t, b, protocol.GameInfo{Name: "1"})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := w.Games(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestWorldCloseWakesJoin(t *testing.T) {
	w, b := newTestWorld(t, WithJoinTimeout(10*time.Second))
	srv := startServer(t, b, protocol.Location{0, 0})
	srv.setSilent(true)
	announce(t, b, protocol.GameInfo{Name: "1"})
	g, _ := w.Game(context.Background(), "1")
	p, _ := g.NewPlayer("waiting", nil)

	join := make(chan error, 1)
	go func() { join <- p.Join(context.Background()) }()
	deadline := time.Now().Add(2 * time.Second)
	for p.State() != Joining && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-join:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed from Join, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Join still blocked after World.Close")
	}
}

func TestWorldCloseWakesDiscovery(t *testing.T) {
	w, _ := newTestWorld(t, WithDiscoveryTimeout(10*time.Second))
	done := make(chan error, 1)
	go func() {
		_, err := w.Games(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Games still blocked after Close")
	}
}
