// Package dice rolls the six-sided dice each side throws in combat.
package dice

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// Sides is the face count of every combat die.
const Sides = 6

// ErrInvalidCount is returned by RollChecked when asked for no dice.
var ErrInvalidCount = errors.New("dice count must be positive")

// Source is the randomness provider for dice rolls.
//
// Implementations used from several goroutines must be safe for concurrent
// use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

// Roll throws count dice with the given number of sides and returns the
// faces in throw order. It panics when count or sides is not positive.
func Roll(src Source, count, sides int) []int {
	if count <= 0 || sides <= 0 {
		panic(fmt.Sprintf("dice: Roll precondition violated: %d dice with %d sides", count, sides))
	}
	faces := make([]int, count)
	for i := range faces {
		faces[i] = src.Intn(sides) + 1
	}
	return faces
}

// RollChecked is Roll for untrusted counts.
func RollChecked(src Source, count int) ([]int, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	return Roll(src, count, Sides), nil
}

// RollCombat throws one d6 per die on each side.
func RollCombat(src Source, attackerDice, defenderDice int) (attacker, defender []int) {
	return Roll(src, attackerDice, Sides), Roll(src, defenderDice, Sides)
}

// Sum adds up faces.
func Sum(faces []int) int {
	total := 0
	for _, f := range faces {
		total += f
	}
	return total
}

// Locked is a seeded math/rand source guarded by a mutex.
type Locked struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocked returns a concurrency-safe source seeded with seed.
func NewLocked(seed int64) *Locked {
	return &Locked{rng: rand.New(rand.NewSource(seed))}
}

// Intn implements Source.
func (l *Locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}
