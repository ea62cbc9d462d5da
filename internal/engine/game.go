// Package engine holds the authoritative game session: combat resolution,
// turn progression and win detection over a generated board.
package engine

import (
	"errors"
	"fmt"
	"slices"

	"github.com/talgya/stackrank/internal/world"
)

// Intner is the random source used for reinforcement draws.
type Intner interface {
	Intn(n int) int
}

// Errors returned by CanAttack and the other non-panicking checks.
var (
	ErrUnknownRegion   = errors.New("unknown region")
	ErrGameOver        = errors.New("game is over")
	ErrCombatPending   = errors.New("a combat is awaiting its roll")
	ErrNoPendingCombat = errors.New("no combat is awaiting a roll")
	ErrNotYourRegion   = errors.New("attacker is not owned by the current player")
	ErrAlreadyMoved    = errors.New("attacker has already moved this turn")
	ErrNotAdjacent     = errors.New("defender is not an adjacent opponent")
	ErrEmptyRoll       = errors.New("both sides need at least one die face")
	ErrHasMoves        = errors.New("current player still has legal attacks")
)

// LogEntry records one combat. Region snapshots are taken when the attack is
// declared; the dice results stay empty until the roll completes.
type LogEntry struct {
	TurnOfPlayer int          `json:"turn_of_player"`
	TurnCounter  int          `json:"turn_counter"`
	Region1      world.Region `json:"region_1"`
	Region2      world.Region `json:"region_2"`
	Region1Dice  []int        `json:"region_1_dice_result"`
	Region2Dice  []int        `json:"region_2_dice_result"`
}

// Pending reports whether the entry is still waiting for its roll.
func (e LogEntry) Pending() bool {
	return len(e.Region1Dice) == 0 && len(e.Region2Dice) == 0
}

// DiceCounts returns how many dice each side rolls.
func (e LogEntry) DiceCounts() (attacker, defender int) {
	return e.Region1.Dice, e.Region2.Dice
}

// Sums returns the face totals for attacker and defender.
func (e LogEntry) Sums() (int, int) {
	return sum(e.Region1Dice), sum(e.Region2Dice)
}

// Clone returns a deep copy of the entry.
func (e LogEntry) Clone() LogEntry {
	c := e
	c.Region1 = e.Region1.Clone()
	c.Region2 = e.Region2.Clone()
	c.Region1Dice = slices.Clone(e.Region1Dice)
	c.Region2Dice = slices.Clone(e.Region2Dice)
	return c
}

// Attack is a legal (attacker, defender) pair for the current player.
type Attack struct {
	Attacker int `json:"attacker"`
	Defender int `json:"defender"`
}

// Game is the mutable session state. It is not safe for concurrent use;
// wrap it in a Session when readers and writers share it.
type Game struct {
	board        *world.Board
	numPlayers   int
	turnOfPlayer int
	turnCounter  int
	log          []LogEntry
	pending      bool
	winner       int
	over         bool
	rng          Intner
}

// NewGame starts a session on board. The game takes ownership of board and
// mutates it as combats resolve.
func NewGame(board *world.Board, numPlayers int, rng Intner) *Game {
	if board == nil || len(board.Regions) == 0 {
		panic("engine: NewGame precondition violated: empty board")
	}
	if numPlayers < 2 {
		panic(fmt.Sprintf("engine: NewGame precondition violated: %d players", numPlayers))
	}
	if rng == nil {
		panic("engine: NewGame precondition violated: nil random source")
	}
	g := &Game{
		board:      board,
		numPlayers: numPlayers,
		rng:        rng,
	}
	g.checkWinner()
	return g
}

// NumPlayers returns the player count fixed at session start.
func (g *Game) NumPlayers() int { return g.numPlayers }

// TurnOfPlayer returns the index of the player whose turn it is.
func (g *Game) TurnOfPlayer() int { return g.turnOfPlayer }

// TurnCounter returns the number of turn advances so far.
func (g *Game) TurnCounter() int { return g.turnCounter }

// Pending reports whether a declared combat is waiting for its roll.
func (g *Game) Pending() bool { return g.pending }

// Winner returns the winning player once the game is over.
func (g *Game) Winner() (int, bool) { return g.winner, g.over }

// Board returns the live board. Callers must not mutate it.
func (g *Game) Board() *world.Board { return g.board }

// Region returns a copy of the region with the given id. It panics when id
// is out of range.
func (g *Game) Region(id int) world.Region {
	return g.mustRegion("Region", id).Clone()
}

// Regions returns copies of every region in id order.
func (g *Game) Regions() []world.Region {
	out := make([]world.Region, len(g.board.Regions))
	for i, r := range g.board.Regions {
		out[i] = r.Clone()
	}
	return out
}

// IsOpponent reports whether region a may attack region b by ownership and
// adjacency alone.
func (g *Game) IsOpponent(a, b int) bool {
	ra, rb := g.board.Region(a), g.board.Region(b)
	if ra == nil || rb == nil {
		return false
	}
	return ra.IsOpponent(*rb)
}

// Log returns a copy of the combat log.
func (g *Game) Log() []LogEntry {
	out := make([]LogEntry, len(g.log))
	for i, e := range g.log {
		out[i] = e.Clone()
	}
	return out
}

// LastEntry returns the most recent log entry. It panics when the log is
// empty.
func (g *Game) LastEntry() LogEntry {
	if len(g.log) == 0 {
		panic("engine: LastEntry precondition violated: log is empty")
	}
	return g.log[len(g.log)-1].Clone()
}

// Snapshot is a deep copy of the session for readers.
type Snapshot struct {
	Board        *world.Board `json:"board"`
	NumPlayers   int          `json:"num_players"`
	TurnOfPlayer int          `json:"turn_of_player"`
	TurnCounter  int          `json:"turn_counter"`
	Log          []LogEntry   `json:"log"`
	Pending      bool         `json:"pending"`
	Winner       *int         `json:"winner,omitempty"`
	Playable     []int        `json:"playable"`
}

// Snapshot copies the current state.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Board:        g.board.Clone(),
		NumPlayers:   g.numPlayers,
		TurnOfPlayer: g.turnOfPlayer,
		TurnCounter:  g.turnCounter,
		Log:          g.Log(),
		Pending:      g.pending,
	}
	if g.over {
		w := g.winner
		s.Winner = &w
	}
	for _, r := range g.board.Regions {
		if g.Playable(r.ID) {
			s.Playable = append(s.Playable, r.ID)
		}
	}
	return s
}

func (g *Game) mustRegion(op string, id int) *world.Region {
	r := g.board.Region(id)
	if r == nil {
		panic(fmt.Sprintf("engine: %s precondition violated: region %d out of range [0, %d)",
			op, id, len(g.board.Regions)))
	}
	return r
}

func sum(faces []int) int {
	total := 0
	for _, f := range faces {
		total += f
	}
	return total
}
