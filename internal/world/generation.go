// Board generation by randomized patch growth.
// Patches are carved one at a time, interleaving players so territory is dealt
// out evenly, and every patch after the first must touch the existing board.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand"
)

// ErrGenerationFailed is returned when patch placement exceeds its retry budget.
var ErrGenerationFailed = errors.New("board generation did not converge")

// GenConfig holds board generation parameters.
type GenConfig struct {
	Players          int   // Number of players (2–8)
	BoardSize        int   // Side length of the square seeds are drawn from
	PatchesPerPlayer int   // Regions dealt to each player
	DicePerPatch     int   // Dice budget per patch; a player's budget is PatchesPerPlayer × DicePerPatch
	MaxDicePerRegion int   // Exclusive upper bound of the per-region dice draw
	MaxAttempts      int   // Seed attempts allowed per patch before giving up
	Seed             int64 // Random seed (0 = random)
}

// DefaultGenConfig returns the standard board for the given number of players.
func DefaultGenConfig(players int) GenConfig {
	return GenConfig{
		Players:          players,
		BoardSize:        20,
		PatchesPerPlayer: 16,
		DicePerPatch:     4,
		MaxDicePerRegion: 4,
		MaxAttempts:      10000,
	}
}

// PatchSize returns how many hexes a patch may add beyond its seed, sized so
// that patches cover roughly half of the board.
func (c GenConfig) PatchSize() int {
	return (c.BoardSize * c.BoardSize) / (c.PatchesPerPlayer * c.Players * 2)
}

// DiceBudget returns the number of dice each player starts with.
func (c GenConfig) DiceBudget() int {
	return c.PatchesPerPlayer * c.DicePerPatch
}

// Validate rejects configurations that can never produce a board.
func (c GenConfig) Validate() error {
	switch {
	case c.Players < 2 || c.Players > 8:
		return fmt.Errorf("players must be 2-8, got %d", c.Players)
	case c.BoardSize < 4:
		return fmt.Errorf("board size must be at least 4, got %d", c.BoardSize)
	case c.PatchesPerPlayer < 1:
		return fmt.Errorf("patches per player must be positive, got %d", c.PatchesPerPlayer)
	case c.DicePerPatch < 1 || c.MaxDicePerRegion < 1:
		return fmt.Errorf("dice per patch and max dice per region must be positive")
	case c.MaxAttempts < 1:
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	case c.PatchSize() < 1:
		return fmt.Errorf("board size %d too small for %d players", c.BoardSize, c.Players)
	}
	return nil
}

// GenerateBoard builds a standard board for numPlayers from seed.
func GenerateBoard(numPlayers int, seed int64) (*Board, error) {
	cfg := DefaultGenConfig(numPlayers)
	cfg.Seed = seed
	return Generate(cfg)
}

// Generate creates a board from the configuration. The result is fully
// determined by cfg.Seed.
func Generate(cfg GenConfig) (*Board, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	cfg.Seed = seed
	return GenerateWithRand(cfg, rand.New(rand.NewSource(seed)))
}

// GenerateWithRand creates a board drawing every random choice from rng.
func GenerateWithRand(cfg GenConfig, rng *rand.Rand) (*Board, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := NewBoard(cfg.BoardSize, cfg.Seed)
	half := cfg.BoardSize/2 - 1
	patchSize := cfg.PatchSize()

	for patch := 0; patch < cfg.PatchesPerPlayer; patch++ {
		for player := 0; player < cfg.Players; player++ {
			bootstrap := patch == 0 && player == 0
			if err := placePatch(b, rng, half, patchSize, player, bootstrap, cfg.MaxAttempts); err != nil {
				return nil, fmt.Errorf("patch %d for player %d: %w", patch, player, err)
			}
		}
	}

	allocateDice(b, cfg, rng)
	b.Relief = generateRelief(b, cfg.Seed)

	slog.Debug("board generated",
		"seed", cfg.Seed,
		"players", cfg.Players,
		"regions", len(b.Regions),
		"hexes", b.HexCount(),
		"patch_size", patchSize,
	)
	return b, nil
}

// placePatch retries from fresh seeds until a patch grows past its seed hex
// and, unless bootstrap, touches a hex already on the board.
func placePatch(b *Board, rng *rand.Rand, half, patchSize, player int, bootstrap bool, maxAttempts int) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := HexCoord{
			Q: rng.Intn(2*half) - half,
			R: rng.Intn(2*half) - half,
		}
		if b.Occupied(start) {
			continue
		}

		hexes, snapshot := growPatch(b, rng, start, patchSize, player)
		if len(hexes) == 1 {
			continue
		}
		if !bootstrap && !b.touchesOccupied(hexes) {
			continue
		}

		b.Hexes = snapshot
		b.Regions = append(b.Regions, Region{
			ID:    len(b.Regions),
			Hexes: hexes,
			Owner: player,
		})
		return nil
	}
	return fmt.Errorf("%w after %d attempts", ErrGenerationFailed, maxAttempts)
}

// growPatch flood-grows a patch from start on a tentative copy of the
// occupancy map. It returns the patch hexes in growth order and the copy.
func growPatch(b *Board, rng *rand.Rand, start HexCoord, patchSize, player int) ([]HexCoord, map[HexCoord]int) {
	snapshot := maps.Clone(b.Hexes)
	snapshot[start] = player
	patch := []HexCoord{start}

	for step := 0; step < patchSize; step++ {
		// Random iteration order avoids growing in a preferred direction.
		frontier, ok := HexCoord{}, false
		for _, i := range rng.Perm(len(patch)) {
			if hasFreeNeighbor(snapshot, patch[i]) {
				frontier, ok = patch[i], true
				break
			}
		}
		if !ok {
			break
		}

		var candidates []HexCoord
		for _, n := range frontier.Neighbors() {
			if _, taken := snapshot[n]; !taken {
				candidates = append(candidates, n)
			}
		}
		next := candidates[rng.Intn(len(candidates))]
		patch = append(patch, next)
		snapshot[next] = player
	}

	return patch, snapshot
}

func hasFreeNeighbor(occupied map[HexCoord]int, h HexCoord) bool {
	for _, n := range h.Neighbors() {
		if _, taken := occupied[n]; !taken {
			return true
		}
	}
	return false
}

// touchesOccupied reports whether any of hexes borders a committed hex.
func (b *Board) touchesOccupied(hexes []HexCoord) bool {
	for _, h := range hexes {
		for _, n := range h.Neighbors() {
			if b.Occupied(n) {
				return true
			}
		}
	}
	return false
}

// allocateDice deals each player's budget across their regions in placement
// order. Each region draws from [1, min(MaxDicePerRegion, budget)); once the
// range collapses the region gets a single die and the budget is spent.
func allocateDice(b *Board, cfg GenConfig, rng *rand.Rand) {
	budget := make(map[int]int, cfg.Players)
	for p := 0; p < cfg.Players; p++ {
		budget[p] = cfg.DiceBudget()
	}

	for i := range b.Regions {
		r := &b.Regions[i]
		upper := min(cfg.MaxDicePerRegion, budget[r.Owner])
		n := 1
		if upper > 1 {
			n = 1 + rng.Intn(upper-1)
		}
		r.Dice = n
		budget[r.Owner] = max(budget[r.Owner]-n, 0)
	}
}
