package engine

import (
	"math/rand"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/talgya/stackrank/internal/world"
)

type move struct {
	attack       Attack
	dice1, dice2 []int
	pass         bool
}

// playRandom plays up to steps moves chosen by t and returns them.
func playRandom(t *rapid.T, g *Game, steps int, check func(before *Game, m move, out CombatOutcome)) []move {
	var moves []move
	for i := 0; i < steps; i++ {
		if _, over := g.Winner(); over {
			break
		}
		attacks := g.LegalAttacks()
		if len(attacks) == 0 {
			turn, counter := g.TurnOfPlayer(), g.TurnCounter()
			g.PassTurn()
			if g.TurnOfPlayer() != (turn+1)%g.NumPlayers() || g.TurnCounter() != counter+1 {
				t.Fatalf("PassTurn moved turn %d/%d to %d/%d", turn, counter, g.TurnOfPlayer(), g.TurnCounter())
			}
			moves = append(moves, move{pass: true})
			continue
		}

		a := attacks[rapid.IntRange(0, len(attacks)-1).Draw(t, "attack")]
		entry := g.BeginCombat(a.Attacker, a.Defender)
		n1, n2 := entry.DiceCounts()
		m := move{
			attack: a,
			dice1:  rapid.SliceOfN(rapid.IntRange(1, 6), n1, n1).Draw(t, "dice1"),
			dice2:  rapid.SliceOfN(rapid.IntRange(1, 6), n2, n2).Draw(t, "dice2"),
		}
		before := &Game{board: g.board.Clone(), turnOfPlayer: g.turnOfPlayer, turnCounter: g.turnCounter}
		out := g.CompleteCombat(m.dice1, m.dice2)
		if check != nil {
			check(before, m, out)
		}
		moves = append(moves, m)
	}
	return moves
}

func newPropertyGame(t *rapid.T) (*Game, int64) {
	players := rapid.IntRange(2, 4).Draw(t, "players")
	seed := rapid.Int64Range(1, 1<<40).Draw(t, "seed")
	b, err := world.GenerateBoard(players, seed)
	if err != nil {
		t.Fatalf("GenerateBoard() error = %v", err)
	}
	return NewGame(b, players, rand.New(rand.NewSource(seed))), seed
}

func TestCombat_ReinforcementInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, _ := newPropertyGame(t)
		playRandom(t, g, 40, func(before *Game, m move, out CombatOutcome) {
			w, c := out.WinningRegion, out.CapturedRegion
			wBefore := before.board.Regions[w].Dice
			cBefore := before.board.Regions[c].Dice
			wAfter := g.board.Regions[w].Dice
			cAfter := g.board.Regions[c].Dice

			if wAfter < 1 || cAfter < 1 {
				t.Fatalf("combat left %d and %d dice", wAfter, cAfter)
			}
			if g.board.Regions[c].Owner != g.board.Regions[w].Owner {
				t.Fatalf("captured region %d not taken by the winner", c)
			}
			if wBefore > 1 {
				// The winner keeps one die beyond what it hands over.
				if cAfter >= wBefore {
					t.Fatalf("captured %d dice from a stack of %d", cAfter, wBefore)
				}
				if wAfter+cAfter != wBefore+1 {
					t.Fatalf("pair total %d after combat, want %d", wAfter+cAfter, wBefore+1)
				}
			} else if wAfter != 1 || cAfter != max(cBefore, 1) {
				t.Fatalf("single-die winner changed dice: %d,%d -> %d,%d", wBefore, cBefore, wAfter, cAfter)
			}

			s1, s2 := out.Entry.Sums()
			if out.AttackerWon != (s1 > s2) {
				t.Fatalf("AttackerWon = %v with sums %d vs %d", out.AttackerWon, s1, s2)
			}
		})
	})
}

func TestTurn_AdvanceInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, _ := newPropertyGame(t)
		playRandom(t, g, 60, func(before *Game, m move, out CombatOutcome) {
			if out.PreviousPlayer != before.turnOfPlayer {
				t.Fatalf("PreviousPlayer = %d, want %d", out.PreviousPlayer, before.turnOfPlayer)
			}
			if out.TurnAdvanced {
				if g.turnOfPlayer != (before.turnOfPlayer+1)%g.numPlayers || g.turnCounter != before.turnCounter+1 {
					t.Fatalf("advance moved %d/%d to %d/%d", before.turnOfPlayer, before.turnCounter, g.turnOfPlayer, g.turnCounter)
				}
				return
			}
			if g.turnOfPlayer != before.turnOfPlayer || g.turnCounter != before.turnCounter {
				t.Fatal("turn changed without TurnAdvanced")
			}
			if g.unblocked() == 0 {
				t.Fatal("turn kept with no unblocked regions")
			}
		})
	})
}

func TestCombat_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, seed := newPropertyGame(t)
		initial := g.board.Clone()
		moves := playRandom(t, g, 30, nil)

		replay := NewGame(initial, g.numPlayers, rand.New(rand.NewSource(seed)))
		for _, m := range moves {
			if m.pass {
				replay.PassTurn()
				continue
			}
			replay.BeginCombat(m.attack.Attacker, m.attack.Defender)
			replay.CompleteCombat(m.dice1, m.dice2)
		}
		if !reflect.DeepEqual(g.board.Regions, replay.board.Regions) {
			t.Fatal("replaying the same moves produced a different board")
		}
		if g.turnOfPlayer != replay.turnOfPlayer || g.turnCounter != replay.turnCounter {
			t.Fatal("replaying the same moves produced a different turn")
		}
	})
}

func TestGameOver_FiresOnceForSoleOwner(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := NewGame(lineBoardFor(t), 2, rand.New(rand.NewSource(1)))
		fired := 0
		playRandom(t, g, 200, func(_ *Game, _ move, out CombatOutcome) {
			if out.GameOver == nil {
				return
			}
			fired++
			for _, r := range g.board.Regions {
				if r.Owner != *out.GameOver {
					t.Fatalf("game over for %d but region %d owned by %d", *out.GameOver, r.ID, r.Owner)
				}
			}
		})
		if fired > 1 {
			t.Fatalf("game over fired %d times", fired)
		}
		if _, over := g.Winner(); over != (fired == 1) {
			t.Fatalf("Winner() over = %v, fired = %d", over, fired)
		}
	})
}

func lineBoardFor(t *rapid.T) *world.Board {
	n := rapid.IntRange(2, 6).Draw(t, "regions")
	owners := make([]int, n)
	dice := make([]int, n)
	for i := range owners {
		owners[i] = i % 2
		dice[i] = rapid.IntRange(1, 4).Draw(t, "dice")
	}
	return lineBoard(owners, dice)
}
