// Package bot plays random legal moves and drives self-play sessions.
package bot

import (
	"github.com/talgya/stackrank/internal/engine"
)

// Intner is the random source a bot draws its choices from.
type Intner interface {
	Intn(n int) int
}

// ChooseAttack picks a uniformly random legal attack for the current player.
// It returns false when the player has none.
func ChooseAttack(g *engine.Game, rng Intner) (engine.Attack, bool) {
	attacks := g.LegalAttacks()
	if len(attacks) == 0 {
		return engine.Attack{}, false
	}
	return attacks[rng.Intn(len(attacks))], true
}
