package engine

import (
	"fmt"
	"log/slog"
)

// hasMoved reports whether region id has already attacked in the current
// turn.
func (g *Game) hasMoved(id int) bool {
	for i := len(g.log) - 1; i >= 0; i-- {
		e := g.log[i]
		if e.TurnOfPlayer != g.turnOfPlayer || e.TurnCounter != g.turnCounter {
			// Entries are appended in turn order, so older ones cannot match.
			break
		}
		if e.Region1.ID == id {
			return true
		}
	}
	return false
}

// hasTarget reports whether region id borders any region of another owner.
func (g *Game) hasTarget(id int) bool {
	r := g.board.Regions[id]
	for _, o := range g.board.Regions {
		if r.IsOpponent(o) {
			return true
		}
	}
	return false
}

// Playable reports whether region id can still start an attack this turn:
// owned by the current player and not yet moved.
func (g *Game) Playable(id int) bool {
	r := g.board.Region(id)
	if r == nil || g.over {
		return false
	}
	return r.Owner == g.turnOfPlayer && !g.hasMoved(id)
}

// unblocked counts the current player's regions that have not moved and
// still border an opponent.
func (g *Game) unblocked() int {
	n := 0
	for _, r := range g.board.Regions {
		if g.Playable(r.ID) && g.hasTarget(r.ID) {
			n++
		}
	}
	return n
}

// LegalAttacks lists every attack the current player may declare now, in
// attacker then defender id order.
func (g *Game) LegalAttacks() []Attack {
	if g.over || g.pending {
		return nil
	}
	var out []Attack
	for _, a := range g.board.Regions {
		if !g.Playable(a.ID) {
			continue
		}
		for _, d := range g.board.Regions {
			if a.IsOpponent(d) {
				out = append(out, Attack{Attacker: a.ID, Defender: d.ID})
			}
		}
	}
	return out
}

func (g *Game) advanceTurnIfBlocked() bool {
	if g.unblocked() > 0 {
		return false
	}
	g.advanceTurn()
	return true
}

func (g *Game) advanceTurn() {
	prev := g.turnOfPlayer
	g.turnOfPlayer = (g.turnOfPlayer + 1) % g.numPlayers
	g.turnCounter++
	slog.Debug("turn advanced",
		"from", prev,
		"to", g.turnOfPlayer,
		"turn_counter", g.turnCounter,
	)
}

// CanPass reports why the current player may not pass, or nil.
func (g *Game) CanPass() error {
	switch {
	case g.over:
		return ErrGameOver
	case g.pending:
		return ErrCombatPending
	case g.unblocked() > 0:
		return ErrHasMoves
	}
	return nil
}

// PassTurn ends the turn of a player who has no legal attack left, such as
// one whose last region was captured. It panics when CanPass fails.
func (g *Game) PassTurn() {
	if err := g.CanPass(); err != nil {
		panic(fmt.Sprintf("engine: PassTurn precondition violated: %v", err))
	}
	g.advanceTurn()
}

// checkWinner ends the game when a single owner holds every region. It
// reports true only on the call that ends the game.
func (g *Game) checkWinner() bool {
	if g.over {
		return false
	}
	counts := g.board.RegionsByOwner()
	for owner, n := range counts {
		if n == len(g.board.Regions) {
			g.over = true
			g.winner = owner
			slog.Info("game over",
				"winner", owner,
				"turn_counter", g.turnCounter,
				"combats", len(g.log),
			)
			return true
		}
	}
	return false
}
