package protocol

import "testing"

func TestTopic(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{Topic(TopicGames), "traze/games"},
		{GridTopic("1"), "traze/1/grid"},
		{PlayersTopic("1"), "traze/1/players"},
		{TickerTopic("1"), "traze/1/ticker"},
		{JoinTopic("1"), "traze/1/join"},
		{PlayerInfoTopic("1", "c-42"), "traze/1/player/c-42"},
		{SteerTopic("1", "7"), "traze/1/7/steer"},
		{BailTopic("1", "7"), "traze/1/7/bail"},
		{Topic(TopicPlayerInfo, "1"), "traze/1/player/+"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Fatalf("topic: got %q want %q", c.got, c.want)
		}
	}
}

func TestCourseDeltas(t *testing.T) {
	want := map[Course][2]int{
		North: {0, 1},
		East:  {1, 0},
		South: {0, -1},
		West:  {-1, 0},
	}
	for c, d := range want {
		dx, dy := c.Delta()
		if dx != d[0] || dy != d[1] {
			t.Fatalf("%s: got (%d,%d) want %v", c, dx, dy, d)
		}
		ox, oy := c.Opposite().Delta()
		if ox != -dx || oy != -dy {
			t.Fatalf("%s: opposite is not the reverse step", c)
		}
	}
	if _, err := ParseCourse("Q"); err == nil {
		t.Fatalf("expected ParseCourse to reject Q")
	}
	if c, err := ParseCourse("E"); err != nil || c != East {
		t.Fatalf("ParseCourse(E) = %q, %v", c, err)
	}
	if West.Index() != 3 || Course("").Index() != -1 {
		t.Fatalf("unexpected Index values")
	}
}

func TestTickerEliminated(t *testing.T) {
	if got := (Ticker{Type: TickerFrag, Casualty: 2, Fragger: 4}).Eliminated(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("frag: %v", got)
	}
	if got := (Ticker{Type: TickerSuicide, Casualty: 3, Fragger: 3}).Eliminated(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("suicide: %v", got)
	}
	if got := (Ticker{Type: TickerCollision, Casualty: 2, Fragger: 5}).Eliminated(); len(got) != 2 || got[1] != 5 {
		t.Fatalf("collision: %v", got)
	}
}
