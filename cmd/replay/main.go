package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"traze.dev/internal/client"
	"traze.dev/internal/config"
	"traze.dev/internal/logging"
	persistlog "traze.dev/internal/persistence/log"
	"traze.dev/internal/protocol"
	"traze.dev/internal/transport"
	"traze.dev/internal/transport/loopback"
)

func main() {
	var (
		eventsDir = flag.String("events", "", "directory containing events-*.jsonl.zst")
		gameName  = flag.String("game", "", "only replay this game (optional)")
		from      = flag.String("from", "", "skip messages before this RFC3339 time (optional)")
		to        = flag.String("to", "", "stop at this RFC3339 time (optional)")
		level     = flag.String("log", "warn", "log level")
	)
	flag.Parse()

	if *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -events")
		os.Exit(2)
	}
	fromT, err := parseTime(*from)
	if err != nil {
		fmt.Fprintln(os.Stderr, "-from:", err)
		os.Exit(2)
	}
	toT, err := parseTime(*to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "-to:", err)
		os.Exit(2)
	}

	log, syncLog, err := logging.New(config.LogConfig{Level: *level})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(2)
	}
	defer syncLog()

	b := loopback.New()
	mux := transport.NewMux(b, log.Named("mux"))
	elims := map[string]int{}
	mux.Tap(func(msg transport.Message) {
		if !transport.Match(protocol.TopicTicker, msg.Topic) {
			return
		}
		if t, err := protocol.DecodeTicker(msg.Topic, msg.Payload); err == nil {
			elims[gameOf(msg.Topic)] += len(t.Eliminated())
		}
	})
	metrics := client.NewMetrics()
	world, err := client.NewWorld(mux,
		client.WithLogger(log.Named("world")),
		client.WithMetrics(metrics),
		client.WithDiscoveryTimeout(time.Millisecond),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	defer world.Close()

	var fed, skipped int
	err = persistlog.ReadDir(*eventsDir, func(e persistlog.Entry) error {
		if !fromT.IsZero() && e.At.Before(fromT) {
			skipped++
			return nil
		}
		if !toT.IsZero() && e.At.After(toT) {
			return persistlog.ErrStop
		}
		if *gameName != "" && e.Topic != protocol.TopicGames && gameOf(e.Topic) != *gameName {
			skipped++
			return nil
		}
		fed++
		return b.Publish(e.Topic, e.Bytes())
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	fmt.Printf("replayed %d messages (%d skipped)\n", fed, skipped)

	games, err := world.Games(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "games:", err)
		os.Exit(1)
	}
	for _, g := range games {
		if *gameName != "" && g.Name() != *gameName {
			continue
		}
		w, h := g.Grid().Size()
		fmt.Printf("game=%s active=%d grid=%dx%d snapshots=%d bikes=%d roster=%d eliminations=%d\n",
			g.Name(), g.ActivePlayers(), w, h, g.Grid().Snapshots(), len(g.Grid().Bikes()), len(g.Roster()), elims[g.Name()])
	}
	m := metrics.Snapshot()
	fmt.Printf("events applied=%d malformed=%d\n", m["events_applied"], m["events_malformed"])
}

func gameOf(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

func parseTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
