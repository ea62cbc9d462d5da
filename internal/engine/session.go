package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/stackrank/internal/world"
)

// Event types published by a Session.
const (
	EventCombatStarted  = "combat_started"
	EventCombatResolved = "combat_resolved"
	EventTurnStarted    = "turn_started"
	EventGameOver       = "game_over"
	EventNewGame        = "new_game"
)

// Event is a notable change in the session, fanned out to subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// GameStarted is the payload of EventNewGame. Board is the initial board.
type GameStarted struct {
	ID      string       `json:"id"`
	Players int          `json:"players"`
	Board   *world.Board `json:"board"`
}

// TurnStarted is the payload of EventTurnStarted.
type TurnStarted struct {
	Player      int `json:"player"`
	TurnCounter int `json:"turn_counter"`
}

// Session serializes access to a Game. Writers take the lock for a whole
// operation; readers get Snapshot copies.
type Session struct {
	mu        sync.RWMutex
	id        string
	game      *Game
	selection Selection

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewSession wraps g under the given match id.
func NewSession(id string, g *Game) *Session {
	return &Session{
		id:   id,
		game: g,
		subs: make(map[int]chan Event),
	}
}

// ID returns the match id of the current game.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Snapshot returns a deep copy of the current game.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.game.Snapshot()
}

// View runs fn with read access to the game. fn must not retain or mutate
// it.
func (s *Session) View(fn func(g *Game)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.game)
}

// Selected returns the current selection.
func (s *Session) Selected() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.selection.Selected()
	return r.ID, ok
}

// Reset replaces the game, clears the selection and announces the new match.
func (s *Session) Reset(id string, g *Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.game = g
	s.selection.Deselect()
	s.emit(Event{Type: EventNewGame, Payload: GameStarted{ID: id, Players: g.NumPlayers(), Board: g.Board().Clone()}})
}

// Attack validates and declares an attack.
func (s *Session) Attack(attackerID, defenderID int) (LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin(attackerID, defenderID)
}

func (s *Session) begin(attackerID, defenderID int) (LogEntry, error) {
	if err := s.game.CanAttack(attackerID, defenderID); err != nil {
		return LogEntry{}, err
	}
	s.selection.Deselect()
	entry := s.game.BeginCombat(attackerID, defenderID)
	s.emit(Event{Type: EventCombatStarted, Payload: entry})
	return entry, nil
}

// Click applies a region click. When it produces an attack intent the
// combat is declared and its entry returned.
func (s *Session) Click(regionID int) (ClickResult, *LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.selection.Click(s.game, regionID)
	if res.Attack == nil {
		return res, nil, nil
	}
	entry, err := s.begin(res.Attack.Attacker, res.Attack.Defender)
	if err != nil {
		return res, nil, err
	}
	return res, &entry, nil
}

// Complete resolves the pending combat with the given faces.
func (s *Session) Complete(dice1, dice2 []int) (CombatOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete(dice1, dice2)
}

// Roll resolves the pending combat with faces produced by roll, which is
// called with the dice count of each side. roll runs without the session
// lock held, so slow entropy sources do not block readers. If the combat is
// resolved or the game replaced meanwhile, Roll returns ErrNoPendingCombat.
func (s *Session) Roll(roll func(attackerDice, defenderDice int) ([]int, []int)) (CombatOutcome, error) {
	s.mu.RLock()
	g := s.game
	pending := g.Pending()
	seq, attackerDice, defenderDice := len(g.log)-1, 0, 0
	if pending {
		attackerDice, defenderDice = g.log[seq].DiceCounts()
	}
	s.mu.RUnlock()
	if !pending {
		return CombatOutcome{}, ErrNoPendingCombat
	}

	d1, d2 := roll(attackerDice, defenderDice)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game != g || !g.Pending() || len(g.log)-1 != seq {
		return CombatOutcome{}, fmt.Errorf("combat %d settled during the roll: %w", seq, ErrNoPendingCombat)
	}
	return s.complete(d1, d2)
}

func (s *Session) complete(dice1, dice2 []int) (CombatOutcome, error) {
	if err := s.game.CanComplete(dice1, dice2); err != nil {
		return CombatOutcome{}, err
	}
	out := s.game.CompleteCombat(dice1, dice2)
	s.selection.Deselect()

	s.emit(Event{Type: EventCombatResolved, Payload: out})
	if out.TurnAdvanced {
		s.emit(Event{Type: EventTurnStarted, Payload: TurnStarted{Player: out.TurnOfPlayer, TurnCounter: out.TurnCounter}})
	}
	if out.GameOver != nil {
		s.emit(Event{Type: EventGameOver, Payload: map[string]any{"winner": *out.GameOver}})
	}
	return out, nil
}

// Pass ends the turn of a player with no legal attack.
func (s *Session) Pass() (TurnStarted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.game.CanPass(); err != nil {
		return TurnStarted{}, err
	}
	s.game.PassTurn()
	s.selection.Deselect()
	ts := TurnStarted{Player: s.game.TurnOfPlayer(), TurnCounter: s.game.TurnCounter()}
	s.emit(Event{Type: EventTurnStarted, Payload: ts})
	return ts, nil
}

// Subscribe registers a listener with a buffer of size buf. Events are
// dropped for a listener whose buffer is full.
func (s *Session) Subscribe(buf int) (int, <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, buf)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Session) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Session) emit(e Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- e:
		default:
			slog.Warn("subscriber buffer full, dropping event", "subscriber", id, "type", e.Type)
		}
	}
}
