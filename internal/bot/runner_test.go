package bot

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/talgya/stackrank/internal/dice"
	"github.com/talgya/stackrank/internal/engine"
	"github.com/talgya/stackrank/internal/world"
)

func lineBoard(owners []int, numDice int) *world.Board {
	b := world.NewBoard(20, 1)
	for i, o := range owners {
		h := world.HexCoord{Q: i}
		b.Hexes[h] = o
		b.Regions = append(b.Regions, world.Region{ID: i, Hexes: []world.HexCoord{h}, Owner: o, Dice: numDice})
	}
	return b
}

func newRunner(b *world.Board, players int) *Runner {
	g := engine.NewGame(b, players, rand.New(rand.NewSource(1)))
	return &Runner{
		Session: engine.NewSession("test", g),
		Dice:    dice.NewLocked(2),
		Choice:  dice.NewLocked(3),
	}
}

func TestChooseAttack(t *testing.T) {
	g := engine.NewGame(lineBoard([]int{0, 1, 0}, 2), 2, rand.New(rand.NewSource(1)))
	a, ok := ChooseAttack(g, rand.New(rand.NewSource(5)))
	if !ok {
		t.Fatal("ChooseAttack() found nothing")
	}
	if err := g.CanAttack(a.Attacker, a.Defender); err != nil {
		t.Errorf("chosen attack %+v is illegal: %v", a, err)
	}

	empty := engine.NewGame(lineBoard([]int{1, 2}, 2), 3, rand.New(rand.NewSource(1)))
	if _, ok := ChooseAttack(empty, rand.New(rand.NewSource(5))); ok {
		t.Error("ChooseAttack() returned an attack for a player with no regions")
	}
}

func TestRunner_PlaysToCompletion(t *testing.T) {
	r := newRunner(lineBoard([]int{0, 1, 0, 1}, 2), 2)
	r.MaxSteps = 5000

	var begun, resolved int
	winner := -1
	r.OnBegin = func(engine.LogEntry) { begun++ }
	r.OnOutcome = func(engine.CombatOutcome) { resolved++ }
	r.OnGameOver = func(w int) { winner = w }

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if winner < 0 {
		t.Fatal("OnGameOver never called")
	}
	if begun != resolved {
		t.Errorf("begun %d combats, resolved %d", begun, resolved)
	}
	snap := r.Session.Snapshot()
	if snap.Winner == nil || *snap.Winner != winner {
		t.Errorf("snapshot winner = %v, callback winner = %d", snap.Winner, winner)
	}
	for _, reg := range snap.Board.Regions {
		if reg.Owner != winner {
			t.Errorf("region %d owned by %d after %d won", reg.ID, reg.Owner, winner)
		}
	}
}

func TestRunner_Stalls(t *testing.T) {
	r := newRunner(lineBoard([]int{0, 1, 0, 1, 0, 1}, 3), 2)
	r.MaxSteps = 1

	if moved, done, err := r.Step(context.Background()); err != nil || !moved || done {
		t.Fatalf("first Step() = %v, %v, %v", moved, done, err)
	}
	if _, _, err := r.Step(context.Background()); !errors.Is(err, ErrStalled) {
		t.Fatalf("second Step() error = %v, want ErrStalled", err)
	}
}

func TestRunner_WaitsForOtherPlayers(t *testing.T) {
	r := newRunner(lineBoard([]int{0, 1}, 2), 2)
	r.Players = map[int]bool{1: true}

	moved, done, err := r.Step(context.Background())
	if err != nil || moved || done {
		t.Fatalf("Step() on a human turn = %v, %v, %v", moved, done, err)
	}
	if r.Steps() != 0 {
		t.Errorf("Steps() = %d, want 0", r.Steps())
	}
}

func TestRunner_PassesWhenBlocked(t *testing.T) {
	r := newRunner(lineBoard([]int{1, 2}, 2), 3)
	var passed *engine.TurnStarted
	r.OnPass = func(ts engine.TurnStarted) { passed = &ts }

	moved, _, err := r.Step(context.Background())
	if err != nil || !moved {
		t.Fatalf("Step() = %v, %v", moved, err)
	}
	if passed == nil || passed.Player != 1 || passed.TurnCounter != 1 {
		t.Fatalf("OnPass got %+v, want player 1 at counter 1", passed)
	}
}

func TestRunner_RunHonorsContext(t *testing.T) {
	r := newRunner(lineBoard([]int{0, 1, 0, 1, 0, 1}, 3), 2)
	r.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if r.Steps() != 1 {
		t.Errorf("Steps() = %d, want 1", r.Steps())
	}
}

func TestRunner_RollDelayHonorsContext(t *testing.T) {
	r := newRunner(lineBoard([]int{0, 1, 0, 1}, 2), 2)
	r.RollDelay = time.Hour
	begun := false
	r.OnBegin = func(engine.LogEntry) { begun = true }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	moved, done, err := r.Step(ctx)
	if !errors.Is(err, context.Canceled) || moved || done {
		t.Fatalf("Step() = %v, %v, %v, want context.Canceled", moved, done, err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("Step() waited %v on a cancelled context", time.Since(start))
	}
	if !begun || !r.Session.Snapshot().Pending {
		t.Error("combat should stay declared and pending")
	}
}
