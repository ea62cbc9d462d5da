package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/talgya/stackrank/internal/dice"
	"github.com/talgya/stackrank/internal/engine"
)

// ErrStalled is returned when a game runs past MaxSteps without a winner.
var ErrStalled = errors.New("game did not finish within the step limit")

// Runner drives a session forward one attack at a time.
type Runner struct {
	Session   *engine.Session
	Dice      dice.Source   // Faces for every roll
	Choice    Intner        // Attack selection
	Players   map[int]bool  // Players the runner moves for; nil means all
	Interval  time.Duration // Pause between attacks
	RollDelay time.Duration // Pause between declaring and rolling
	MaxSteps  int           // 0 = unlimited

	// Callbacks, all optional.
	OnBegin    func(engine.LogEntry)
	OnOutcome  func(engine.CombatOutcome)
	OnPass     func(engine.TurnStarted)
	OnGameOver func(winner int)

	steps int
}

// Steps returns how many moves the runner has made.
func (r *Runner) Steps() int { return r.steps }

func (r *Runner) controls(player int) bool {
	return r.Players == nil || r.Players[player]
}

// Run plays until the game ends or ctx is done. When Players is set it
// waits on other players' turns.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("bot runner started", "match", r.Session.ID(), "interval", r.Interval)
	defer slog.Info("bot runner stopped", "match", r.Session.ID(), "steps", r.steps)

	for {
		moved, done, err := r.Step(ctx)
		if err != nil || done {
			return err
		}

		wait := r.Interval
		if !moved && wait <= 0 {
			wait = 100 * time.Millisecond
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Step makes one move for the current player if the runner controls them:
// an attack and its roll, or a pass when no attack is possible. It reports
// whether a move was made and whether the game is over. When ctx ends during
// RollDelay the declared combat is left pending and ctx's error returned.
func (r *Runner) Step(ctx context.Context) (moved, done bool, err error) {
	if r.MaxSteps > 0 && r.steps >= r.MaxSteps {
		return false, false, ErrStalled
	}

	var (
		attack  engine.Attack
		ok      bool
		over    bool
		player  int
		pending bool
	)
	r.Session.View(func(g *engine.Game) {
		_, over = g.Winner()
		player = g.TurnOfPlayer()
		pending = g.Pending()
		if !over && !pending && r.controls(player) {
			attack, ok = ChooseAttack(g, r.Choice)
		}
	})
	if over {
		return false, true, nil
	}
	if pending || !r.controls(player) {
		return false, false, nil
	}

	if !ok {
		ts, err := r.Session.Pass()
		if err != nil {
			return r.lostRace("pass", err)
		}
		r.steps++
		slog.Debug("bot passed", "player", player, "next", ts.Player)
		if r.OnPass != nil {
			r.OnPass(ts)
		}
		return true, false, nil
	}

	entry, err := r.Session.Attack(attack.Attacker, attack.Defender)
	if err != nil {
		return r.lostRace("attack", err)
	}
	if r.OnBegin != nil {
		r.OnBegin(entry)
	}
	if r.RollDelay > 0 {
		if err := sleep(ctx, r.RollDelay); err != nil {
			return false, false, err
		}
	}

	out, err := r.Session.Roll(func(a, d int) ([]int, []int) {
		return dice.RollCombat(r.Dice, a, d)
	})
	if err != nil {
		return r.lostRace("roll", err)
	}
	r.steps++
	if r.OnOutcome != nil {
		r.OnOutcome(out)
	}
	if out.GameOver != nil {
		if r.OnGameOver != nil {
			r.OnGameOver(*out.GameOver)
		}
		return true, true, nil
	}
	return true, false, nil
}

// lostRace handles a move rejected because another writer changed the
// session between the read and the write.
func (r *Runner) lostRace(op string, err error) (bool, bool, error) {
	slog.Debug("bot move rejected", "op", op, "error", err)
	if errors.Is(err, engine.ErrGameOver) {
		return false, true, nil
	}
	return false, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
