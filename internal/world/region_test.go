package world

import "testing"

func TestRegion_CenterHex(t *testing.T) {
	r := Region{Hexes: []HexCoord{{0, 0}, {1, 0}, {2, 0}, {1, 1}}}

	q, rr := r.CenterOfMass()
	if q != 1 || rr != 0.25 {
		t.Fatalf("CenterOfMass() = (%v, %v), want (1, 0.25)", q, rr)
	}
	if got := r.CenterHex(); got != (HexCoord{1, 0}) {
		t.Errorf("CenterHex() = %v, want (1,0)", got)
	}
}

func TestRegion_CenterHexFirstWinsTies(t *testing.T) {
	r := Region{Hexes: []HexCoord{{0, 0}, {2, 0}}}
	if got := r.CenterHex(); got != (HexCoord{0, 0}) {
		t.Errorf("CenterHex() = %v, want (0,0)", got)
	}
}

func TestRegion_IsOpponent(t *testing.T) {
	a := Region{ID: 0, Owner: 0, Hexes: []HexCoord{{0, 0}, {1, 0}}}
	touching := Region{ID: 1, Owner: 1, Hexes: []HexCoord{{2, 0}}}
	friendly := Region{ID: 2, Owner: 0, Hexes: []HexCoord{{0, 1}}}
	distant := Region{ID: 3, Owner: 1, Hexes: []HexCoord{{5, 5}}}

	if !a.IsOpponent(touching) || !touching.IsOpponent(a) {
		t.Error("adjacent regions with different owners should be opponents")
	}
	if a.IsOpponent(friendly) {
		t.Error("regions with the same owner are never opponents")
	}
	if a.IsOpponent(distant) {
		t.Error("non-adjacent regions are never opponents")
	}
}

func TestRegion_CloneDoesNotAlias(t *testing.T) {
	r := Region{ID: 4, Owner: 1, Dice: 3, Hexes: []HexCoord{{0, 0}}}
	c := r.Clone()
	c.Hexes[0] = HexCoord{9, 9}
	if r.Hexes[0] != (HexCoord{0, 0}) {
		t.Fatal("Clone shares the hex slice with the original")
	}
}

func TestBoard_Validate(t *testing.T) {
	good := &Board{Regions: []Region{
		{ID: 0, Dice: 1, Hexes: []HexCoord{{0, 0}}},
		{ID: 1, Dice: 2, Hexes: []HexCoord{{1, 0}}},
	}}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name    string
		regions []Region
	}{
		{"wrong id", []Region{{ID: 1, Dice: 1, Hexes: []HexCoord{{0, 0}}}}},
		{"no hexes", []Region{{ID: 0, Dice: 1}}},
		{"no dice", []Region{{ID: 0, Hexes: []HexCoord{{0, 0}}}}},
		{"shared hex", []Region{
			{ID: 0, Dice: 1, Hexes: []HexCoord{{0, 0}}},
			{ID: 1, Dice: 1, Hexes: []HexCoord{{0, 0}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Board{Regions: tt.regions}
			if err := b.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestBoard_Neighbors(t *testing.T) {
	b := &Board{Regions: []Region{
		{ID: 0, Hexes: []HexCoord{{0, 0}}},
		{ID: 1, Hexes: []HexCoord{{1, 0}}},
		{ID: 2, Hexes: []HexCoord{{4, 4}}},
	}}
	got := b.Neighbors(0)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("Neighbors(0) = %v, want [1]", got)
	}
	if got := b.Neighbors(7); got != nil {
		t.Errorf("Neighbors(7) = %v, want nil", got)
	}
}
