package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// generateRelief assigns each occupied hex a cosmetic elevation in [0, 1).
// Clients use it to offset region heights; it has no effect on play.
func generateRelief(b *Board, seed int64) map[HexCoord]float64 {
	noise := opensimplex.NewNormalized(seed)
	relief := make(map[HexCoord]float64, len(b.Hexes))

	for coord := range b.Hexes {
		// Hex axial → cartesian: x = q + r*0.5, y = r * sqrt(3)/2
		x := float64(coord.Q) + float64(coord.R)*0.5
		y := float64(coord.R) * math.Sqrt(3.0) / 2.0
		relief[coord] = octaveNoise(noise, x, y, 2, 0.15, 0.5)
	}
	return relief
}

// RegionRelief returns the mean relief across a region's hexes.
func (b *Board) RegionRelief(id int) float64 {
	r := b.Region(id)
	if r == nil || len(r.Hexes) == 0 {
		return 0
	}
	total := 0.0
	for _, h := range r.Hexes {
		total += b.Relief[h]
	}
	return total / float64(len(r.Hexes))
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
