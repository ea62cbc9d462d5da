package world

import "math"

// Region is one territory: a contiguous set of hexes with an owner and a dice stack.
type Region struct {
	ID    int        `json:"id"`    // Index into Board.Regions, never reused
	Hexes []HexCoord `json:"hexes"` // Non-empty; a hex belongs to at most one region
	Owner int        `json:"owner"` // Player index
	Dice  int        `json:"dice"`  // >= 1 once generation has allocated dice
}

// Clone returns a deep copy. Log entries hold regions by value, so the hex
// slice must not alias the live board.
func (r Region) Clone() Region {
	hexes := make([]HexCoord, len(r.Hexes))
	copy(hexes, r.Hexes)
	r.Hexes = hexes
	return r
}

// CenterOfMass returns the average of the region's axial coordinates.
func (r Region) CenterOfMass() (float64, float64) {
	if len(r.Hexes) == 0 {
		return 0, 0
	}
	var q, rr float64
	for _, h := range r.Hexes {
		q += float64(h.Q)
		rr += float64(h.R)
	}
	n := float64(len(r.Hexes))
	return q / n, rr / n
}

// CenterHex returns the region's own hex closest to its center of mass.
// The first hex in placement order wins ties.
func (r Region) CenterHex() HexCoord {
	cq, cr := r.CenterOfMass()
	nearest := HexCoord{}
	minDistance := math.MaxFloat64
	for _, h := range r.Hexes {
		d := math.Hypot(cq-float64(h.Q), cr-float64(h.R))
		if d < minDistance {
			minDistance = d
			nearest = h
		}
	}
	return nearest
}

// Touches reports whether some hex of r is a grid neighbor of some hex of o.
func (r Region) Touches(o Region) bool {
	for _, a := range r.Hexes {
		for _, b := range o.Hexes {
			if a.IsNeighbor(b) {
				return true
			}
		}
	}
	return false
}

// IsOpponent reports whether r may attack o: different owners and a shared edge.
func (r Region) IsOpponent(o Region) bool {
	return r.Owner != o.Owner && r.Touches(o)
}
