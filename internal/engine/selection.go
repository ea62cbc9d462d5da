package engine

import "github.com/talgya/stackrank/internal/world"

// Selection is the presentation-side choice of a source region. It is not
// part of the authoritative game state.
type Selection struct {
	region *world.Region
}

// Select marks r as the attack source.
func (s *Selection) Select(r world.Region) {
	c := r.Clone()
	s.region = &c
}

// Deselect clears the selection.
func (s *Selection) Deselect() {
	s.region = nil
}

// Selected returns the selected region, if any.
func (s *Selection) Selected() (world.Region, bool) {
	if s.region == nil {
		return world.Region{}, false
	}
	return s.region.Clone(), true
}

// ClickResult is what a click on a region asks the caller to do.
type ClickResult struct {
	Selected *int    `json:"selected,omitempty"`
	Attack   *Attack `json:"attack,omitempty"`
}

// Click applies a click on regionID. Clicking a playable region of the
// current player selects it. Clicking any other region deselects, and when
// the prior selection borders it as an opponent the result carries the
// attack to declare.
func (s *Selection) Click(g *Game, regionID int) ClickResult {
	r := g.board.Region(regionID)
	if r == nil {
		s.Deselect()
		return ClickResult{}
	}

	if r.Owner == g.turnOfPlayer {
		if !g.Playable(regionID) {
			return s.current()
		}
		s.Select(*r)
		id := regionID
		return ClickResult{Selected: &id}
	}

	var res ClickResult
	if sel, ok := s.Selected(); ok && g.CanAttack(sel.ID, regionID) == nil {
		res.Attack = &Attack{Attacker: sel.ID, Defender: regionID}
	}
	s.Deselect()
	return res
}

func (s *Selection) current() ClickResult {
	if s.region == nil {
		return ClickResult{}
	}
	id := s.region.ID
	return ClickResult{Selected: &id}
}
