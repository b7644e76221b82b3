package client

import (
	"fmt"
	"sort"
	"sync"

	"traze.dev/internal/protocol"
)

// Bike is the client's view of one bike on the grid.
type Bike struct {
	PlayerID int
	X, Y     int
	Course   protocol.Course
	Trail    []protocol.Location
}

// Grid mirrors the latest snapshot of one game.
//
// A snapshot replaces the whole state. Eliminations announced on the ticker
// win over snapshots that still list the eliminated bike: the id stays
// tombstoned until a snapshot arrives that no longer contains it.
type Grid struct {
	mu         sync.RWMutex
	width      int
	height     int
	tiles      [][]int
	bikes      map[int]Bike
	spawns     []protocol.Location
	eliminated map[int]struct{}
	snapshots  uint64
}

func NewGrid() *Grid {
	return &Grid{
		bikes:      map[int]Bike{},
		eliminated: map[int]struct{}{},
	}
}

// Apply replaces the grid with s. Applying the same snapshot twice leaves
// the state unchanged.
func (g *Grid) Apply(s protocol.Grid) {
	tiles := make([][]int, s.Width)
	for x := 0; x < s.Width; x++ {
		tiles[x] = make([]int, s.Height)
		if x < len(s.Tiles) {
			copy(tiles[x], s.Tiles[x])
		}
	}
	inside := func(l protocol.Location) bool {
		return l.X() >= 0 && l.X() < s.Width && l.Y() >= 0 && l.Y() < s.Height
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	listed := make(map[int]bool, len(s.Bikes))
	bikes := make(map[int]Bike, len(s.Bikes))
	for _, b := range s.Bikes {
		listed[b.PlayerID] = true
		if _, dead := g.eliminated[b.PlayerID]; dead {
			continue
		}
		bike := Bike{
			PlayerID: b.PlayerID,
			X:        b.CurrentLocation.X(),
			Y:        b.CurrentLocation.Y(),
			Course:   b.Direction,
			Trail:    append([]protocol.Location(nil), b.Trail...),
		}
		// Position and trail count as occupied even if the tile matrix
		// lags behind.
		for _, l := range append([]protocol.Location{b.CurrentLocation}, b.Trail...) {
			if inside(l) && tiles[l.X()][l.Y()] == 0 {
				tiles[l.X()][l.Y()] = b.PlayerID
			}
		}
		bikes[b.PlayerID] = bike
	}
	for id := range g.eliminated {
		if !listed[id] {
			delete(g.eliminated, id)
		}
	}

	g.width, g.height = s.Width, s.Height
	g.tiles = tiles
	g.bikes = bikes
	g.spawns = append([]protocol.Location(nil), s.Spawns...)
	g.snapshots++
}

// Eliminate removes the bike of id and keeps it out of later snapshots
// until the server stops listing it. It reports whether a bike was removed.
func (g *Grid) Eliminate(id int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.eliminated[id] = struct{}{}
	if _, ok := g.bikes[id]; !ok {
		return false
	}
	delete(g.bikes, id)
	return true
}

func (g *Grid) Size() (width, height int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.width, g.height
}

// Snapshots reports how many snapshots have been applied.
func (g *Grid) Snapshots() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshots
}

// Tile returns the occupant of (x, y), zero when free.
func (g *Grid) Tile(x, y int) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.inBoundsLocked(x, y) {
		return 0, fmt.Errorf("tile (%d,%d) on %dx%d grid: %w", x, y, g.width, g.height, ErrOutOfBounds)
	}
	return g.tiles[x][y], nil
}

// Free reports whether (x, y) lies on the grid and is unoccupied.
func (g *Grid) Free(x, y int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.inBoundsLocked(x, y) && g.tiles[x][y] == 0
}

func (g *Grid) inBoundsLocked(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

func (g *Grid) Bike(id int) (Bike, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.bikes[id]
	if ok {
		b.Trail = append([]protocol.Location(nil), b.Trail...)
	}
	return b, ok
}

// Bikes returns every live bike ordered by player id.
func (g *Grid) Bikes() []Bike {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Bike, 0, len(g.bikes))
	for _, b := range g.bikes {
		b.Trail = append([]protocol.Location(nil), b.Trail...)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

func (g *Grid) Spawns() []protocol.Location {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]protocol.Location(nil), g.spawns...)
}
