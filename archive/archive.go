// Package archive keeps a queryable index of every game the pipeline
// has flushed: one row per record in an embedded SQLite database.
// The JSON batch files stay the source of truth; the archive exists so
// the operator tools can answer "how many games has model 40 produced"
// without rescanning every file.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/tenuki-go/tenuki/selfplay"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY,
	identity TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	thread_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	black_ver INTEGER NOT NULL,
	white_ver INTEGER NOT NULL,
	reward REAL NOT NULL,
	num_moves INTEGER NOT NULL,
	priority REAL NOT NULL,
	offline INTEGER NOT NULL,
	source_file TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS games_black_ver ON games (black_ver);
CREATE INDEX IF NOT EXISTS games_identity ON games (identity);

CREATE TABLE IF NOT EXISTS checkpoints (
	identity TEXT NOT NULL,
	thread_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	move_idx INTEGER NOT NULL,
	black_ver INTEGER NOT NULL,
	white_ver INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (identity, thread_id)
);
`

// Archive wraps the database handle. database/sql serializes access;
// one Archive may be shared across goroutines.
type Archive struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path. ":memory:"
// works for tests.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// modernc sqlite does not tolerate concurrent writers on one
	// connection pool entry; a single connection keeps writes ordered.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// IndexBatch inserts one row per record, all in one transaction.
// sourceFile names the batch file the records came from.
func (a *Archive) IndexBatch(ctx context.Context, identity, sourceFile string, records []selfplay.Record) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO games
		(identity, timestamp, thread_id, seq, black_ver, white_ver,
		 reward, num_moves, priority, offline, source_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx,
			identity, rec.Timestamp, rec.ThreadID, rec.Seq,
			rec.Request.Assignment.BlackVer, rec.Request.Assignment.WhiteVer,
			rec.Result.Reward, rec.Result.NumMoves, rec.Priority,
			rec.Offline, sourceFile)
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Debug().Str("identity", identity).Int("records", len(records)).Msg("indexed batch")
	return nil
}

// UpdateCheckpoints upserts the latest per-thread checkpoints for one
// producer.
func (a *Archive) UpdateCheckpoints(ctx context.Context, identity string, states map[int]selfplay.ThreadState, at time.Time) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO checkpoints
		(identity, thread_id, seq, move_idx, black_ver, white_ver, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity, thread_id) DO UPDATE SET
			seq = excluded.seq, move_idx = excluded.move_idx,
			black_ver = excluded.black_ver, white_ver = excluded.white_ver,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ts := range states {
		_, err := stmt.ExecContext(ctx, identity, ts.ThreadID, ts.Seq,
			ts.MoveIdx, ts.Black, ts.White, at.Unix())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ModelSummary is the per-model aggregate the operator tools print.
type ModelSummary struct {
	BlackVer   int64
	Games      int
	MeanReward float64
	MeanMoves  float64
}

// ModelSummaries returns per-black-model game counts and averages,
// most-played models first.
func (a *Archive) ModelSummaries(ctx context.Context) ([]ModelSummary, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT black_ver, COUNT(*),
		AVG(reward), AVG(num_moves)
		FROM games GROUP BY black_ver ORDER BY COUNT(*) DESC, black_ver`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelSummary
	for rows.Next() {
		var s ModelSummary
		if err := rows.Scan(&s.BlackVer, &s.Games, &s.MeanReward, &s.MeanMoves); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GameCount returns the total number of indexed games.
func (a *Archive) GameCount(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n)
	return n, err
}

// Rewards returns every indexed reward, oldest first; the histogram
// tooling buckets them.
func (a *Archive) Rewards(ctx context.Context) ([]float64, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT reward FROM games ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Checkpoint is a stored per-thread checkpoint with its provenance.
type Checkpoint struct {
	Identity  string
	State     selfplay.ThreadState
	UpdatedAt time.Time
}

// RecentCheckpoints returns the stored checkpoints updated since the
// cutoff, newest first.
func (a *Archive) RecentCheckpoints(ctx context.Context, since time.Time) ([]Checkpoint, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT identity, thread_id, seq,
		move_idx, black_ver, white_ver, updated_at
		FROM checkpoints WHERE updated_at >= ? ORDER BY updated_at DESC`,
		since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		var at int64
		err := rows.Scan(&c.Identity, &c.State.ThreadID, &c.State.Seq,
			&c.State.MoveIdx, &c.State.Black, &c.State.White, &at)
		if err != nil {
			return nil, err
		}
		c.UpdatedAt = time.Unix(at, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}
