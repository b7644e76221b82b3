// Package indexdb keeps a SQLite journal of played lives.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Life is one join-to-death span of a local player.
type Life struct {
	Game          string
	PlayerID      int
	PlayerName    string
	CorrelationID string
	SpawnX        int
	SpawnY        int
	JoinedAt      time.Time
	DiedAt        time.Time
	Cause         string
	Fragger       int
	Frags         int
	Updates       int
}

func (l Life) Duration() time.Duration { return l.DiedAt.Sub(l.JoinedAt) }

type Stats struct {
	Written       uint64
	Dropped       uint64
	Failed        uint64
	QueueDepth    int
	QueueCapacity int
}

// Journal writes lives from a single background goroutine so callers on
// the delivery path never wait for disk.
type Journal struct {
	db  *sql.DB
	log *zap.SugaredLogger

	ch   chan Life
	wg   sync.WaitGroup
	once sync.Once

	// mu guards closed and the send on ch against Close closing ch.
	mu      sync.RWMutex
	closed  bool
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

const queueSize = 1024

func OpenSQLite(path string, log *zap.SugaredLogger) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &Journal{
		db:  db,
		log: log,
		ch:  make(chan Life, queueSize),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lives (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			game TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			player_name TEXT NOT NULL,
			correlation_id TEXT NOT NULL,
			spawn_x INTEGER NOT NULL,
			spawn_y INTEGER NOT NULL,
			joined_at TEXT NOT NULL,
			died_at TEXT NOT NULL,
			cause TEXT NOT NULL,
			fragger INTEGER NOT NULL,
			frags INTEGER NOT NULL,
			updates INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lives_game_died ON lives(game, died_at);`,
		`CREATE INDEX IF NOT EXISTS idx_lives_cause ON lives(cause);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// RecordLife queues l for writing. When the writer falls behind the life
// is dropped and counted.
func (j *Journal) RecordLife(l Life) {
	if j == nil {
		return
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- l:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) Stats() Stats {
	return Stats{
		Written:       j.written.Load(),
		Dropped:       j.dropped.Load(),
		Failed:        j.failed.Load(),
		QueueDepth:    len(j.ch),
		QueueCapacity: cap(j.ch),
	}
}

// Close drains the queue and closes the database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.ch)
		j.mu.Unlock()
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *Journal) loop() {
	insert, err := j.db.Prepare(`INSERT INTO lives(game,player_id,player_name,correlation_id,spawn_x,spawn_y,joined_at,died_at,cause,fragger,frags,updates) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		j.log.Errorw("journal prepare failed", "err", err)
		for range j.ch {
			j.failed.Add(1)
		}
		return
	}
	defer insert.Close()

	for l := range j.ch {
		_, err := insert.Exec(
			l.Game, l.PlayerID, l.PlayerName, l.CorrelationID,
			l.SpawnX, l.SpawnY,
			l.JoinedAt.UTC().Format(time.RFC3339Nano),
			l.DiedAt.UTC().Format(time.RFC3339Nano),
			l.Cause, l.Fragger, l.Frags, l.Updates,
		)
		if err != nil {
			j.failed.Add(1)
			j.log.Warnw("journal write failed", "game", l.Game, "player", l.PlayerName, "err", err)
			continue
		}
		j.written.Add(1)
	}
}

// Recent returns up to limit lives, newest first. An empty game matches
// every game.
func (j *Journal) Recent(ctx context.Context, game string, limit int) ([]Life, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `SELECT game,player_id,player_name,correlation_id,spawn_x,spawn_y,joined_at,died_at,cause,fragger,frags,updates
		FROM lives WHERE (? = '' OR game = ?) ORDER BY seq DESC LIMIT ?`, game, game, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Life
	for rows.Next() {
		var (
			l              Life
			joined, diedAt string
		)
		if err := rows.Scan(&l.Game, &l.PlayerID, &l.PlayerName, &l.CorrelationID, &l.SpawnX, &l.SpawnY,
			&joined, &diedAt, &l.Cause, &l.Fragger, &l.Frags, &l.Updates); err != nil {
			return nil, err
		}
		if l.JoinedAt, err = time.Parse(time.RFC3339Nano, joined); err != nil {
			return nil, fmt.Errorf("joined_at: %w", err)
		}
		if l.DiedAt, err = time.Parse(time.RFC3339Nano, diedAt); err != nil {
			return nil, fmt.Errorf("died_at: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type CauseCount struct {
	Cause string
	Lives int
	Frags int
}

// Causes aggregates lives by cause of death, most frequent first.
func (j *Journal) Causes(ctx context.Context, game string) ([]CauseCount, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT cause, COUNT(*), COALESCE(SUM(frags),0) FROM lives
		WHERE (? = '' OR game = ?) GROUP BY cause ORDER BY COUNT(*) DESC, cause`, game, game)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CauseCount
	for rows.Next() {
		var c CauseCount
		if err := rows.Scan(&c.Cause, &c.Lives, &c.Frags); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
