// Package persistence archives finished and in-progress matches in SQLite
// for later replay. The live session never reads from it.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/stackrank/internal/engine"
	"github.com/talgya/stackrank/internal/world"
)

// ErrNotFound is returned when a match id is not in the archive.
var ErrNotFound = errors.New("match not found")

// DB wraps a SQLite connection for the match archive.
type DB struct {
	conn *sqlx.DB
}

// Match is one archived game.
type Match struct {
	ID        string `db:"id" json:"id"`
	Seed      int64  `db:"seed" json:"seed"`
	Players   int    `db:"players" json:"players"`
	CreatedAt int64  `db:"created_at" json:"created_at"` // unix seconds
	Winner    *int   `db:"winner" json:"winner,omitempty"`
	Entries   int    `db:"entries" json:"entries"`
}

// Record is a match with its initial board and combat log.
type Record struct {
	Match   Match             `json:"match"`
	Board   *world.Board      `json:"board"`
	Entries []engine.LogEntry `json:"entries"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		players INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		winner INTEGER
	);

	CREATE TABLE IF NOT EXISTS regions (
		match_id TEXT NOT NULL,
		region_id INTEGER NOT NULL,
		owner INTEGER NOT NULL,
		dice INTEGER NOT NULL,
		hexes_json TEXT NOT NULL,
		PRIMARY KEY (match_id, region_id)
	);

	CREATE TABLE IF NOT EXISTS log_entries (
		match_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		turn_of_player INTEGER NOT NULL,
		turn_counter INTEGER NOT NULL,
		region_1_json TEXT NOT NULL,
		region_2_json TEXT NOT NULL,
		dice_1_json TEXT NOT NULL,
		dice_2_json TEXT NOT NULL,
		PRIMARY KEY (match_id, seq)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_matches_created ON matches(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateMatch stores a new match and its initial board.
func (db *DB) CreateMatch(id string, board *world.Board, players int) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO matches (id, seed, players, created_at) VALUES (?, ?, ?, ?)",
		id, board.Seed, players, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", id, err)
	}

	stmt, err := tx.Preparex(`INSERT INTO regions
		(match_id, region_id, owner, dice, hexes_json) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range board.Regions {
		hexesJSON, _ := json.Marshal(r.Hexes)
		if _, err := stmt.Exec(id, r.ID, r.Owner, r.Dice, string(hexesJSON)); err != nil {
			return fmt.Errorf("insert region %d: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// AppendEntry stores a resolved log entry at position seq. Writing the same
// seq twice keeps the latest.
func (db *DB) AppendEntry(id string, seq int, e engine.LogEntry) error {
	r1, _ := json.Marshal(e.Region1)
	r2, _ := json.Marshal(e.Region2)
	d1, _ := json.Marshal(e.Region1Dice)
	d2, _ := json.Marshal(e.Region2Dice)

	_, err := db.conn.Exec(`INSERT OR REPLACE INTO log_entries
		(match_id, seq, turn_of_player, turn_counter, region_1_json, region_2_json, dice_1_json, dice_2_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, seq, e.TurnOfPlayer, e.TurnCounter,
		string(r1), string(r2), string(d1), string(d2),
	)
	if err != nil {
		return fmt.Errorf("insert entry %d of %s: %w", seq, id, err)
	}
	return nil
}

// FinishMatch records the winner.
func (db *DB) FinishMatch(id string, winner int) error {
	res, err := db.conn.Exec("UPDATE matches SET winner = ? WHERE id = ?", winner, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish %s: %w", id, ErrNotFound)
	}
	return nil
}

// LoadMatch returns a match with its initial board and entries in order.
func (db *DB) LoadMatch(id string) (*Record, error) {
	var m Match
	err := db.conn.Get(&m, `SELECT id, seed, players, created_at, winner,
		(SELECT COUNT(*) FROM log_entries WHERE match_id = matches.id) AS entries
		FROM matches WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var regionRows []struct {
		RegionID  int    `db:"region_id"`
		Owner     int    `db:"owner"`
		Dice      int    `db:"dice"`
		HexesJSON string `db:"hexes_json"`
	}
	if err := db.conn.Select(&regionRows,
		"SELECT region_id, owner, dice, hexes_json FROM regions WHERE match_id = ? ORDER BY region_id",
		id,
	); err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}

	board := world.NewBoard(0, m.Seed)
	for _, row := range regionRows {
		r := world.Region{ID: row.RegionID, Owner: row.Owner, Dice: row.Dice}
		if err := json.Unmarshal([]byte(row.HexesJSON), &r.Hexes); err != nil {
			return nil, fmt.Errorf("region %d hexes: %w", row.RegionID, err)
		}
		for _, h := range r.Hexes {
			board.Hexes[h] = r.Owner
		}
		board.Regions = append(board.Regions, r)
	}

	var entryRows []struct {
		TurnOfPlayer int    `db:"turn_of_player"`
		TurnCounter  int    `db:"turn_counter"`
		Region1JSON  string `db:"region_1_json"`
		Region2JSON  string `db:"region_2_json"`
		Dice1JSON    string `db:"dice_1_json"`
		Dice2JSON    string `db:"dice_2_json"`
	}
	if err := db.conn.Select(&entryRows, `SELECT turn_of_player, turn_counter,
		region_1_json, region_2_json, dice_1_json, dice_2_json
		FROM log_entries WHERE match_id = ? ORDER BY seq`, id); err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	entries := make([]engine.LogEntry, 0, len(entryRows))
	for _, row := range entryRows {
		e := engine.LogEntry{TurnOfPlayer: row.TurnOfPlayer, TurnCounter: row.TurnCounter}
		for _, f := range []struct {
			src string
			dst any
		}{
			{row.Region1JSON, &e.Region1},
			{row.Region2JSON, &e.Region2},
			{row.Dice1JSON, &e.Region1Dice},
			{row.Dice2JSON, &e.Region2Dice},
		} {
			if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
				return nil, fmt.Errorf("decode entry: %w", err)
			}
		}
		entries = append(entries, e)
	}

	return &Record{Match: m, Board: board, Entries: entries}, nil
}

// RecentMatches returns up to limit matches, newest first.
func (db *DB) RecentMatches(limit int) ([]Match, error) {
	var matches []Match
	err := db.conn.Select(&matches, `SELECT id, seed, players, created_at, winner,
		(SELECT COUNT(*) FROM log_entries WHERE match_id = matches.id) AS entries
		FROM matches ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	return matches, err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// CountMatches returns how many matches are archived and how many finished.
func (db *DB) CountMatches() (total, finished int, err error) {
	row := db.conn.QueryRowx("SELECT COUNT(*), COUNT(winner) FROM matches")
	err = row.Scan(&total, &finished)
	if err != nil {
		slog.Warn("count matches failed", "error", err)
	}
	return total, finished, err
}
