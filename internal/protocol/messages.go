package protocol

// traze/games (server -> client)
type GameInfo struct {
	Name          string `json:"name"`
	ActivePlayers int    `json:"activePlayers"`
}

// Location is an [x, y] pair.
type Location [2]int

func (l Location) X() int { return l[0] }
func (l Location) Y() int { return l[1] }

type Bike struct {
	PlayerID        int        `json:"playerId"`
	CurrentLocation Location   `json:"currentLocation"`
	Direction       Course     `json:"direction,omitempty"`
	Trail           []Location `json:"trail,omitempty"`
}

// traze/<game>/grid (server -> client). Tiles are indexed Tiles[x][y];
// zero is free, anything else is the id of the occupying player.
type Grid struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Tiles  [][]int    `json:"tiles"`
	Bikes  []Bike     `json:"bikes"`
	Spawns []Location `json:"spawns,omitempty"`
}

// traze/<game>/players (server -> client), one entry per roster member.
type PlayerEntry struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Frags int    `json:"frags"`
	Owned int    `json:"owned"`
}

// Ticker event types.
const (
	TickerFrag      = "frag"
	TickerSuicide   = "suicide"
	TickerCollision = "collision"
)

// traze/<game>/ticker (server -> client)
type Ticker struct {
	Type     string `json:"type"`
	Casualty int    `json:"casualty"`
	Fragger  int    `json:"fragger"`
}

// Eliminated lists the player ids removed from play by t. A head-on
// collision takes out both parties.
func (t Ticker) Eliminated() []int {
	if t.Type == TickerCollision && t.Fragger != 0 && t.Fragger != t.Casualty {
		return []int{t.Casualty, t.Fragger}
	}
	return []int{t.Casualty}
}

// traze/<game>/player/<correlation id> (server -> client)
type JoinAck struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	SecretUserToken string   `json:"secretUserToken"`
	Position        Location `json:"position"`
}

// traze/<game>/join (client -> server)
type JoinMsg struct {
	Name           string `json:"name"`
	MQTTClientName string `json:"mqttClientName"`
}

// traze/<game>/<player id>/steer (client -> server)
type SteerMsg struct {
	Course      Course `json:"course"`
	PlayerToken string `json:"playerToken"`
}

// traze/<game>/<player id>/bail (client -> server)
type BailMsg struct {
	PlayerToken string `json:"playerToken"`
}
