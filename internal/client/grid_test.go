package client

import (
	"errors"
	"reflect"
	"testing"

	"traze.dev/internal/protocol"
)

func bikeAt(id, x, y int, c protocol.Course, trail ...protocol.Location) protocol.Bike {
	if trail == nil {
		trail = []protocol.Location{}
	}
	return protocol.Bike{PlayerID: id, CurrentLocation: protocol.Location{x, y}, Direction: c, Trail: trail}
}

func TestGridApplyIsIdempotent(t *testing.T) {
	s := emptyGrid(4, 4, bikeAt(1, 1, 2, protocol.North, protocol.Location{1, 1}))

	g := NewGrid()
	g.Apply(s)
	tiles, bikes := g.tiles, g.Bikes()
	g.Apply(s)

	if !reflect.DeepEqual(tiles, g.tiles) {
		t.Fatalf("tiles changed on re-apply:\n%v\n%v", tiles, g.tiles)
	}
	if !reflect.DeepEqual(bikes, g.Bikes()) {
		t.Fatalf("bikes changed on re-apply:\n%v\n%v", bikes, g.Bikes())
	}
	if g.Snapshots() != 2 {
		t.Fatalf("snapshots: %d", g.Snapshots())
	}
}

func TestGridApplyDoesNotAliasSnapshot(t *testing.T) {
	s := emptyGrid(2, 2)
	g := NewGrid()
	g.Apply(s)
	s.Tiles[0][0] = 9
	if !g.Free(0, 0) {
		t.Fatalf("grid shares tile storage with the snapshot")
	}
}

func TestGridTileAndFree(t *testing.T) {
	g := NewGrid()
	g.Apply(emptyGrid(4, 3, bikeAt(2, 3, 2, protocol.East, protocol.Location{2, 2})))

	if w, h := g.Size(); w != 4 || h != 3 {
		t.Fatalf("size = %dx%d", w, h)
	}
	if v, err := g.Tile(3, 2); err != nil || v != 2 {
		t.Fatalf("Tile(3,2) = %d, %v", v, err)
	}
	if v, err := g.Tile(0, 0); err != nil || v != 0 {
		t.Fatalf("Tile(0,0) = %d, %v", v, err)
	}
	for _, c := range [][2]int{{-1, 0}, {0, -1}, {4, 0}, {0, 3}} {
		if _, err := g.Tile(c[0], c[1]); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("Tile(%d,%d): expected ErrOutOfBounds, got %v", c[0], c[1], err)
		}
		if g.Free(c[0], c[1]) {
			t.Fatalf("Free(%d,%d) outside the grid", c[0], c[1])
		}
	}
	if g.Free(2, 2) || !g.Free(1, 1) {
		t.Fatalf("unexpected occupancy")
	}
}

func TestGridEmptyBeforeFirstSnapshot(t *testing.T) {
	g := NewGrid()
	if g.Free(0, 0) {
		t.Fatalf("no cell is free before a snapshot")
	}
	if _, err := g.Tile(0, 0); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestGridMarksBikeCellsOccupied(t *testing.T) {
	s := emptyGrid(3, 3)
	s.Bikes = []protocol.Bike{bikeAt(5, 1, 1, protocol.South, protocol.Location{1, 2})}
	g := NewGrid()
	g.Apply(s)
	if g.Free(1, 1) || g.Free(1, 2) {
		t.Fatalf("bike cells must be occupied")
	}
	if v, _ := g.Tile(1, 1); v != 5 {
		t.Fatalf("Tile(1,1) = %d", v)
	}
}

func TestGridEliminationAfterSnapshot(t *testing.T) {
	s := emptyGrid(4, 4, bikeAt(1, 0, 0, protocol.North), bikeAt(2, 3, 3, protocol.South))
	g := NewGrid()
	g.Apply(s)

	if !g.Eliminate(1) {
		t.Fatalf("expected bike 1 to be removed")
	}
	if _, ok := g.Bike(1); ok {
		t.Fatalf("bike 1 still present")
	}
	if _, ok := g.Bike(2); !ok {
		t.Fatalf("bike 2 must survive")
	}

	// A snapshot produced before the server processed the death still
	// lists the bike.
	g.Apply(s)
	if _, ok := g.Bike(1); ok {
		t.Fatalf("stale snapshot resurrected bike 1")
	}

	g.Apply(emptyGrid(4, 4, bikeAt(2, 3, 2, protocol.South)))
	if len(g.eliminated) != 0 {
		t.Fatalf("tombstone should clear once the server drops the bike: %v", g.eliminated)
	}

	// The id may be handed out again for a new life.
	g.Apply(emptyGrid(4, 4, bikeAt(1, 2, 2, protocol.East)))
	if _, ok := g.Bike(1); !ok {
		t.Fatalf("reused id must be tracked again")
	}
}

func TestGridEliminationBeforeSnapshot(t *testing.T) {
	g := NewGrid()
	if g.Eliminate(7) {
		t.Fatalf("nothing to remove yet")
	}
	g.Apply(emptyGrid(4, 4, bikeAt(7, 1, 1, protocol.West)))
	if _, ok := g.Bike(7); ok {
		t.Fatalf("eliminated bike applied from a later snapshot")
	}
	if got := len(g.Bikes()); got != 0 {
		t.Fatalf("bikes: %d", got)
	}
}
