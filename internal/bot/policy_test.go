package bot

import (
	"testing"

	"traze.dev/internal/protocol"
)

// board is a w x h grid with the listed cells blocked.
func board(w, h int, blocked ...[2]int) func(x, y int) bool {
	b := map[[2]int]bool{}
	for _, c := range blocked {
		b[c] = true
	}
	return func(x, y int) bool {
		return x >= 0 && x < w && y >= 0 && y < h && !b[[2]int{x, y}]
	}
}

func TestValidMoves(t *testing.T) {
	free := board(4, 4, [2]int{2, 1})

	got := ValidMoves(1, 1, "", free)
	want := []protocol.Course{protocol.North, protocol.South, protocol.West}
	if len(got) != len(want) {
		t.Fatalf("moves = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("moves = %v, want %v", got, want)
		}
	}

	// Heading north never offers south.
	for _, c := range ValidMoves(1, 1, protocol.North, free) {
		if c == protocol.South {
			t.Fatalf("reverse offered: %v", c)
		}
	}
	if m := ValidMoves(0, 0, protocol.South, board(1, 1)); len(m) != 0 {
		t.Fatalf("boxed in, got %v", m)
	}
}

func TestRandomKeepsValidHeading(t *testing.T) {
	r := NewRandom(1)
	s := State{X: 1, Y: 1, Course: protocol.East, Moves: []protocol.Course{protocol.North, protocol.East}}
	for i := 0; i < 20; i++ {
		if c := r.Next(s); c != protocol.East {
			t.Fatalf("turned away from a valid heading: %v", c)
		}
	}

	s.Moves = []protocol.Course{protocol.North, protocol.South}
	for i := 0; i < 20; i++ {
		if c := r.Next(s); !contains(s.Moves, c) {
			t.Fatalf("picked invalid course %v", c)
		}
	}

	s.Moves = nil
	if c := r.Next(s); c != protocol.East {
		t.Fatalf("no moves should keep heading, got %v", c)
	}
}

func TestLookaheadAvoidsDeadEnd(t *testing.T) {
	// Going north from (1,1) leads into a pocket at (1,2) with no exit.
	free := board(4, 4, [2]int{0, 2}, [2]int{2, 2}, [2]int{1, 3})
	s := State{X: 1, Y: 1, Course: protocol.North, Free: free}
	s.Moves = ValidMoves(s.X, s.Y, s.Course, free)

	c := NewLookahead(1).Next(s)
	if c == protocol.North {
		t.Fatalf("lookahead drove into a dead end")
	}
	if !contains(s.Moves, c) {
		t.Fatalf("picked invalid course %v", c)
	}
}

func TestLookaheadPrefersHeadingOnTie(t *testing.T) {
	free := board(9, 9)
	s := State{X: 4, Y: 4, Course: protocol.West, Free: free}
	s.Moves = ValidMoves(4, 4, protocol.West, free)
	if c := NewLookahead(2).Next(s); c != protocol.West {
		t.Fatalf("open field should keep heading, got %v", c)
	}
}

func TestNewPolicy(t *testing.T) {
	for _, name := range []string{"random", "lookahead", ""} {
		if _, err := NewPolicy(name, 1); err != nil {
			t.Fatalf("NewPolicy(%q): %v", name, err)
		}
	}
	if _, err := NewPolicy("psychic", 1); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
