// Package bot plays Traze with a pluggable steering policy.
package bot

import (
	"fmt"
	"math/rand"
	"sync"

	"traze.dev/internal/protocol"
)

// State is what a policy sees on each update.
type State struct {
	X, Y int
	// Course is the current heading, empty right after spawning.
	Course protocol.Course
	// Moves lists the courses whose next cell is free, never the reverse
	// of Course.
	Moves []protocol.Course
	// Free reports whether a cell is on the grid and unoccupied.
	Free func(x, y int) bool
}

// Policy picks the next course. Returning "" or the current course keeps
// going straight.
type Policy interface {
	Next(State) protocol.Course
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(State) protocol.Course

func (f PolicyFunc) Next(s State) protocol.Course { return f(s) }

// ValidMoves lists the courses from (x, y) that lead onto a free cell,
// excluding a reversal of heading.
func ValidMoves(x, y int, heading protocol.Course, free func(x, y int) bool) []protocol.Course {
	var out []protocol.Course
	for _, c := range protocol.Courses {
		if heading != "" && c == heading.Opposite() {
			continue
		}
		dx, dy := c.Delta()
		if free(x+dx, y+dy) {
			out = append(out, c)
		}
	}
	return out
}

func contains(cs []protocol.Course, c protocol.Course) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

// Random keeps its heading while that stays valid and otherwise turns to a
// random valid course.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Next(s State) protocol.Course {
	if len(s.Moves) == 0 {
		return s.Course
	}
	if s.Course != "" && contains(s.Moves, s.Course) {
		return s.Course
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.Moves[r.rng.Intn(len(s.Moves))]
}

// Lookahead scores each valid move by the free cells reachable from its
// target within Depth steps and takes the best one. Ties keep the current
// heading, then follow compass order.
type Lookahead struct {
	Depth int
}

func NewLookahead(depth int) *Lookahead {
	if depth <= 0 {
		depth = 1
	}
	return &Lookahead{Depth: depth}
}

func (l *Lookahead) Next(s State) protocol.Course {
	if len(s.Moves) == 0 {
		return s.Course
	}
	best, bestScore := protocol.Course(""), -1
	for _, c := range s.Moves {
		dx, dy := c.Delta()
		score := l.reach(s.X, s.Y, s.X+dx, s.Y+dy, s.Free)
		if score > bestScore || (score == bestScore && c == s.Course) {
			best, bestScore = c, score
		}
	}
	return best
}

// reach counts free cells within Depth steps of (x, y), not counting the
// start cell or the cell just left.
func (l *Lookahead) reach(fromX, fromY, x, y int, free func(x, y int) bool) int {
	type cell struct{ x, y int }
	seen := map[cell]bool{{fromX, fromY}: true, {x, y}: true}
	frontier := []cell{{x, y}}
	n := 0
	for step := 0; step < l.Depth && len(frontier) > 0; step++ {
		var next []cell
		for _, c := range frontier {
			for _, d := range protocol.Courses {
				dx, dy := d.Delta()
				nc := cell{c.x + dx, c.y + dy}
				if seen[nc] || !free(nc.x, nc.y) {
					continue
				}
				seen[nc] = true
				n++
				next = append(next, nc)
			}
		}
		frontier = next
	}
	return n
}

// NewPolicy builds a policy by name.
func NewPolicy(name string, seed int64) (Policy, error) {
	switch name {
	case "random":
		return NewRandom(seed), nil
	case "lookahead", "":
		return NewLookahead(1), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}
