package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/stackrank/internal/engine"
	"github.com/talgya/stackrank/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMatchRoundTrip(t *testing.T) {
	db := openTestDB(t)
	board, err := world.GenerateBoard(2, 11)
	if err != nil {
		t.Fatalf("GenerateBoard() error = %v", err)
	}
	id := uuid.NewString()
	if err := db.CreateMatch(id, board, 2); err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}

	entry := engine.LogEntry{
		TurnOfPlayer: 0,
		TurnCounter:  3,
		Region1:      board.Regions[0],
		Region2:      board.Regions[1],
		Region1Dice:  []int{6, 2},
		Region2Dice:  []int{1},
	}
	if err := db.AppendEntry(id, 0, entry); err != nil {
		t.Fatalf("AppendEntry() error = %v", err)
	}
	if err := db.FinishMatch(id, 1); err != nil {
		t.Fatalf("FinishMatch() error = %v", err)
	}

	rec, err := db.LoadMatch(id)
	if err != nil {
		t.Fatalf("LoadMatch() error = %v", err)
	}
	if rec.Match.Seed != 11 || rec.Match.Players != 2 || rec.Match.Entries != 1 {
		t.Errorf("match = %+v", rec.Match)
	}
	if rec.Match.Winner == nil || *rec.Match.Winner != 1 {
		t.Errorf("winner = %v, want 1", rec.Match.Winner)
	}
	if len(rec.Board.Regions) != len(board.Regions) {
		t.Fatalf("loaded %d regions, want %d", len(rec.Board.Regions), len(board.Regions))
	}
	if err := rec.Board.Validate(); err != nil {
		t.Errorf("loaded board invalid: %v", err)
	}
	got := rec.Entries[0]
	if got.TurnCounter != 3 || got.Region1.ID != 0 || len(got.Region1Dice) != 2 || got.Region2Dice[0] != 1 {
		t.Errorf("entry = %+v", got)
	}
}

func TestLoadMatch_NotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LoadMatch("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadMatch() error = %v, want ErrNotFound", err)
	}
	if err := db.FinishMatch("missing", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FinishMatch() error = %v, want ErrNotFound", err)
	}
}

func TestRecentMatchesAndMeta(t *testing.T) {
	db := openTestDB(t)
	board, err := world.GenerateBoard(3, 5)
	if err != nil {
		t.Fatalf("GenerateBoard() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := db.CreateMatch(uuid.NewString(), board, 3); err != nil {
			t.Fatalf("CreateMatch() error = %v", err)
		}
	}

	matches, err := db.RecentMatches(2)
	if err != nil {
		t.Fatalf("RecentMatches() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("RecentMatches(2) returned %d", len(matches))
	}
	for _, m := range matches {
		if m.Winner != nil {
			t.Errorf("unfinished match %s has winner %d", m.ID, *m.Winner)
		}
	}

	if total, finished, err := db.CountMatches(); err != nil || total != 3 || finished != 0 {
		t.Errorf("CountMatches() = %d, %d, %v", total, finished, err)
	}

	if err := db.SaveMeta("games_played", "3"); err != nil {
		t.Fatalf("SaveMeta() error = %v", err)
	}
	if v, err := db.GetMeta("games_played"); err != nil || v != "3" {
		t.Errorf("GetMeta() = %q, %v", v, err)
	}
}

func TestRecorder(t *testing.T) {
	db := openTestDB(t)

	b := world.NewBoard(4, 9)
	for i, o := range []int{0, 1} {
		h := world.HexCoord{Q: i}
		b.Hexes[h] = o
		b.Regions = append(b.Regions, world.Region{ID: i, Owner: o, Dice: 2, Hexes: []world.HexCoord{h}})
	}
	if err := db.CreateMatch("first", b.Clone(), 2); err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}

	s := engine.NewSession("first", engine.NewGame(b, 2, fixedIntn(0)))
	rec := NewRecorder(db, s)

	if _, err := s.Attack(0, 1); err != nil {
		t.Fatalf("Attack() error = %v", err)
	}
	if _, err := s.Complete([]int{6, 6}, []int{1, 1}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	next, err := world.GenerateBoard(2, 4)
	if err != nil {
		t.Fatalf("GenerateBoard() error = %v", err)
	}
	s.Reset("second", engine.NewGame(next, 2, fixedIntn(0)))

	rec.Close()
	rec.Run(context.Background())

	first, err := db.LoadMatch("first")
	if err != nil {
		t.Fatalf("LoadMatch(first) error = %v", err)
	}
	if len(first.Entries) != 1 || first.Entries[0].Region1Dice[0] != 6 {
		t.Errorf("first entries = %+v", first.Entries)
	}
	if first.Match.Winner == nil || *first.Match.Winner != 0 {
		t.Errorf("first winner = %v, want 0", first.Match.Winner)
	}

	second, err := db.LoadMatch("second")
	if err != nil {
		t.Fatalf("LoadMatch(second) error = %v", err)
	}
	if second.Match.Seed != 4 || len(second.Board.Regions) != len(next.Regions) {
		t.Errorf("second match = %+v with %d regions", second.Match, len(second.Board.Regions))
	}
}

type fixedIntn int

func (f fixedIntn) Intn(n int) int { return int(f) % n }
