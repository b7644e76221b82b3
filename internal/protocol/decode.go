package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	gamesSchema   = mustSchema("games.schema.json")
	gridSchema    = mustSchema("grid.schema.json")
	playersSchema = mustSchema("players.schema.json")
	tickerSchema  = mustSchema("ticker.schema.json")
	joinAckSchema = mustSchema("joinack.schema.json")
)

func mustSchema(name string) *jsonschema.Schema {
	b, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		panic(fmt.Sprintf("protocol: read schema %s: %v", name, err))
	}
	return jsonschema.MustCompileString(name, string(b))
}

// decode validates b against s and only then unmarshals it into T, so
// nothing past this boundary sees an unchecked payload.
func decode[T any](topic string, s *jsonschema.Schema, b []byte) (T, error) {
	var out T
	if len(bytes.TrimSpace(b)) == 0 {
		return out, malformed(topic, fmt.Errorf("empty payload"))
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return out, malformed(topic, err)
	}
	if err := s.Validate(doc); err != nil {
		return out, malformed(topic, err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, malformed(topic, err)
	}
	return out, nil
}

func DecodeGames(topic string, b []byte) ([]GameInfo, error) {
	return decode[[]GameInfo](topic, gamesSchema, b)
}

// DecodeGrid also checks that the tile matrix matches the advertised
// dimensions and that every bike lies inside the grid.
func DecodeGrid(topic string, b []byte) (Grid, error) {
	g, err := decode[Grid](topic, gridSchema, b)
	if err != nil {
		return Grid{}, err
	}
	if len(g.Tiles) != g.Width {
		return Grid{}, malformed(topic, fmt.Errorf("tiles has %d columns, width is %d", len(g.Tiles), g.Width))
	}
	for x, col := range g.Tiles {
		if len(col) != g.Height {
			return Grid{}, malformed(topic, fmt.Errorf("tiles[%d] has %d rows, height is %d", x, len(col), g.Height))
		}
	}
	inside := func(l Location) bool {
		return l.X() >= 0 && l.X() < g.Width && l.Y() >= 0 && l.Y() < g.Height
	}
	for _, bike := range g.Bikes {
		if !inside(bike.CurrentLocation) {
			return Grid{}, malformed(topic, fmt.Errorf("bike %d at %v is outside the grid", bike.PlayerID, bike.CurrentLocation))
		}
		for _, l := range bike.Trail {
			if !inside(l) {
				return Grid{}, malformed(topic, fmt.Errorf("bike %d trail cell %v is outside the grid", bike.PlayerID, l))
			}
		}
	}
	return g, nil
}

func DecodePlayers(topic string, b []byte) ([]PlayerEntry, error) {
	return decode[[]PlayerEntry](topic, playersSchema, b)
}

func DecodeTicker(topic string, b []byte) (Ticker, error) {
	return decode[Ticker](topic, tickerSchema, b)
}

func DecodeJoinAck(topic string, b []byte) (JoinAck, error) {
	return decode[JoinAck](topic, joinAckSchema, b)
}
