package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"traze.dev/internal/persistence/indexdb"
)

func main() {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dbPath := fs.String("db", "./data/journal.db", "sqlite journal path")
	game := fs.String("game", "", "game filter (optional)")
	limit := fs.Int("limit", 20, "result limit for lives")
	asJSON := fs.Bool("json", false, "print one JSON object per line")
	_ = fs.Parse(os.Args[1:])

	q := "lives"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	j, err := indexdb.OpenSQLite(*dbPath, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer j.Close()
	ctx := context.Background()

	switch q {
	case "lives":
		lives, err := j.Recent(ctx, *game, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, l := range lives {
			if *asJSON {
				printJSON(map[string]any{
					"game":      l.Game,
					"player_id": l.PlayerID,
					"name":      l.PlayerName,
					"spawn":     [2]int{l.SpawnX, l.SpawnY},
					"joined_at": l.JoinedAt.Format(time.RFC3339),
					"lived_ms":  l.Duration().Milliseconds(),
					"cause":     l.Cause,
					"fragger":   l.Fragger,
					"frags":     l.Frags,
					"updates":   l.Updates,
				})
				continue
			}
			fmt.Printf("%s game=%s id=%d name=%s spawn=(%d,%d) lived=%s cause=%s fragger=%d frags=%d updates=%d\n",
				l.DiedAt.Format(time.RFC3339), l.Game, l.PlayerID, l.PlayerName, l.SpawnX, l.SpawnY,
				l.Duration().Round(time.Millisecond), l.Cause, l.Fragger, l.Frags, l.Updates)
		}
	case "causes":
		causes, err := j.Causes(ctx, *game)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, c := range causes {
			if *asJSON {
				printJSON(map[string]any{"cause": c.Cause, "lives": c.Lives, "frags": c.Frags})
				continue
			}
			fmt.Printf("%-10s lives=%d frags=%d\n", c.Cause, c.Lives, c.Frags)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want lives or causes)")
		os.Exit(2)
	}
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
