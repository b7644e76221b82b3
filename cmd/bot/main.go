package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"traze.dev/internal/bot"
	"traze.dev/internal/client"
	"traze.dev/internal/config"
	"traze.dev/internal/logging"
	"traze.dev/internal/persistence/indexdb"
	persistlog "traze.dev/internal/persistence/log"
	"traze.dev/internal/transport"
	"traze.dev/internal/transport/mqtt"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to bot.yaml (optional)")
		brokerURL  = flag.String("broker", "", "broker url, e.g. tls://traze.iteratec.de:8883 or wss://host/mqtt")
		name       = flag.String("name", "", "player name")
		game       = flag.String("game", "", "game to join (default: busiest)")
		policy     = flag.String("policy", "", "steering policy: random|lookahead")
		rounds     = flag.Int("rounds", 0, "lives to play, 0 plays until interrupted")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "seed for the random policy")
		recordDir  = flag.String("record", "", "directory to record inbound messages to (optional)")
		journal    = flag.String("journal", "", "sqlite journal path (optional)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.Broker.URL = *brokerURL
		case "name":
			cfg.Player.Name = *name
		case "game":
			cfg.Player.Game = *game
		case "policy":
			cfg.Player.Policy = *policy
		case "rounds":
			cfg.Player.Rounds = *rounds
		case "record":
			cfg.Recording.Dir = *recordDir
		case "journal":
			cfg.Journal.Path = *journal
		}
	})
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	log, syncLog, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, *seed, log)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorw("bot stopped", "err", err)
		syncLog()
		os.Exit(1)
	}
	syncLog()
}

func run(ctx context.Context, cfg config.Config, seed int64, log *zap.SugaredLogger) error {
	pol, err := bot.NewPolicy(cfg.Player.Policy, seed)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Broker.ConnectTimeout+5*time.Second)
	broker, err := mqtt.Dial(dialCtx, mqtt.Config{
		BrokerURL:          cfg.Broker.URL,
		ClientID:           cfg.Broker.ClientID,
		Username:           cfg.Broker.Username,
		Password:           cfg.Broker.Password,
		InsecureSkipVerify: cfg.Broker.InsecureSkipVerify,
		ConnectTimeout:     cfg.Broker.ConnectTimeout,
		KeepAlive:          cfg.Broker.KeepAlive,
	}, log.Named("mqtt"))
	cancel()
	if err != nil {
		return err
	}

	mux := transport.NewMux(broker, log.Named("mux"))
	if cfg.Recording.Dir != "" {
		rec := persistlog.NewRecorder(cfg.Recording.Dir, log.Named("recorder"))
		mux.Tap(rec.Record)
		defer rec.Close()
		log.Infow("recording inbound messages", "dir", cfg.Recording.Dir)
	}

	metrics := client.NewMetrics()
	world, err := client.NewWorld(mux,
		client.WithLogger(log.Named("world")),
		client.WithMetrics(metrics),
		client.WithDiscoveryTimeout(cfg.DiscoveryTimeout),
		client.WithJoinTimeout(cfg.Player.JoinTimeout),
	)
	if err != nil {
		_ = mux.Close()
		return err
	}
	defer world.Close()

	g, err := world.Game(ctx, cfg.Player.Game)
	if err != nil {
		return err
	}
	log.Infow("game selected", "game", g.Name(), "active", g.ActivePlayers())

	opts := []bot.RunnerOption{bot.WithLogger(log.Named("runner"))}
	if cfg.Journal.Path != "" {
		j, err := indexdb.OpenSQLite(cfg.Journal.Path, log.Named("journal"))
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer func() {
			_ = j.Close()
			st := j.Stats()
			log.Infow("journal closed", "written", st.Written, "dropped", st.Dropped, "failed", st.Failed)
		}()
		opts = append(opts, bot.WithJournal(j))
	}

	r, err := bot.NewRunner(g, cfg.Player.Name, pol, opts...)
	if err != nil {
		return err
	}
	err = r.Play(ctx, cfg.Player.Rounds, cfg.Player.SuppressTimeouts)
	log.Infow("session over", "lives", len(r.Lives()), "metrics", metrics.Snapshot())
	return err
}
