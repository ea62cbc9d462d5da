package world

import (
	"errors"
	"fmt"
)

// ErrInvalidBoard is returned by Validate when a board breaks an invariant.
var ErrInvalidBoard = errors.New("invalid board")

// Board holds the generated map: the occupancy grid and the regions carved from it.
type Board struct {
	Hexes   map[HexCoord]int `json:"-"`       // Occupied hex -> owning player, generation only
	Regions []Region         `json:"regions"` // Indexed by Region.ID
	Seed    int64            `json:"seed"`
	Extent  int              `json:"extent"` // Side length of the square the seeds were drawn from

	// Relief is a cosmetic elevation per occupied hex in [0, 1).
	Relief map[HexCoord]float64 `json:"-"`
}

// NewBoard creates an empty board.
func NewBoard(extent int, seed int64) *Board {
	return &Board{
		Hexes:  make(map[HexCoord]int),
		Seed:   seed,
		Extent: extent,
		Relief: make(map[HexCoord]float64),
	}
}

// Occupied reports whether a hex has been committed to any region.
func (b *Board) Occupied(h HexCoord) bool {
	_, ok := b.Hexes[h]
	return ok
}

// Region returns a pointer to the live region with the given id, or nil.
func (b *Board) Region(id int) *Region {
	if id < 0 || id >= len(b.Regions) {
		return nil
	}
	return &b.Regions[id]
}

// Neighbors returns the ids of all regions sharing an edge with region id.
func (b *Board) Neighbors(id int) []int {
	r := b.Region(id)
	if r == nil {
		return nil
	}
	var ids []int
	for i := range b.Regions {
		if i != id && r.Touches(b.Regions[i]) {
			ids = append(ids, i)
		}
	}
	return ids
}

// RegionsByOwner returns the number of regions each player holds.
func (b *Board) RegionsByOwner() map[int]int {
	counts := make(map[int]int)
	for _, r := range b.Regions {
		counts[r.Owner]++
	}
	return counts
}

// DiceByOwner returns the total dice each player holds.
func (b *Board) DiceByOwner() map[int]int {
	totals := make(map[int]int)
	for _, r := range b.Regions {
		totals[r.Owner] += r.Dice
	}
	return totals
}

// HexCount returns the number of occupied hexes.
func (b *Board) HexCount() int {
	return len(b.Hexes)
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	c := &Board{
		Hexes:   make(map[HexCoord]int, len(b.Hexes)),
		Regions: make([]Region, len(b.Regions)),
		Seed:    b.Seed,
		Extent:  b.Extent,
		Relief:  make(map[HexCoord]float64, len(b.Relief)),
	}
	for h, p := range b.Hexes {
		c.Hexes[h] = p
	}
	for h, e := range b.Relief {
		c.Relief[h] = e
	}
	for i, r := range b.Regions {
		c.Regions[i] = r.Clone()
	}
	return c
}

// Validate checks the structural invariants: ids match indices, every region
// has at least one hex and one die, and no hex is shared.
func (b *Board) Validate() error {
	seen := make(map[HexCoord]int)
	for i, r := range b.Regions {
		if r.ID != i {
			return fmt.Errorf("%w: region at index %d has id %d", ErrInvalidBoard, i, r.ID)
		}
		if len(r.Hexes) == 0 {
			return fmt.Errorf("%w: region %d has no hexes", ErrInvalidBoard, i)
		}
		if r.Dice < 1 {
			return fmt.Errorf("%w: region %d has %d dice", ErrInvalidBoard, i, r.Dice)
		}
		for _, h := range r.Hexes {
			if other, ok := seen[h]; ok {
				return fmt.Errorf("%w: hex (%d,%d) in regions %d and %d", ErrInvalidBoard, h.Q, h.R, other, i)
			}
			seen[h] = i
		}
	}
	return nil
}

// String returns a summary of the board.
func (b *Board) String() string {
	return fmt.Sprintf("Board(regions=%d, hexes=%d, seed=%d)", len(b.Regions), b.HexCount(), b.Seed)
}
