package engine

import (
	"fmt"
	"log/slog"
	"slices"
)

// CombatOutcome describes what a completed roll changed.
type CombatOutcome struct {
	Seq            int      `json:"seq"` // index of Entry in the log
	Entry          LogEntry `json:"entry"`
	AttackerWon    bool     `json:"attacker_won"`
	WinningRegion  int      `json:"winning_region"`
	CapturedRegion int      `json:"captured_region"`
	NewOwner       int      `json:"new_owner"`
	Reinforcement  int      `json:"reinforcement"` // dice placed on the captured region, 0 when none moved
	Redrawn        bool     `json:"redrawn"`
	TurnAdvanced   bool     `json:"turn_advanced"`
	PreviousPlayer int      `json:"previous_player"`
	TurnOfPlayer   int      `json:"turn_of_player"`
	TurnCounter    int      `json:"turn_counter"`
	GameOver       *int     `json:"game_over,omitempty"`
}

// CanAttack reports why attacker may not attack defender right now, or nil
// when BeginCombat would accept the pair.
func (g *Game) CanAttack(attackerID, defenderID int) error {
	a, d := g.board.Region(attackerID), g.board.Region(defenderID)
	switch {
	case a == nil:
		return fmt.Errorf("attacker %d: %w", attackerID, ErrUnknownRegion)
	case d == nil:
		return fmt.Errorf("defender %d: %w", defenderID, ErrUnknownRegion)
	case g.over:
		return ErrGameOver
	case g.pending:
		return ErrCombatPending
	case a.Owner != g.turnOfPlayer:
		return fmt.Errorf("region %d owned by %d: %w", attackerID, a.Owner, ErrNotYourRegion)
	case g.hasMoved(attackerID):
		return fmt.Errorf("region %d: %w", attackerID, ErrAlreadyMoved)
	case !a.IsOpponent(*d):
		return fmt.Errorf("region %d -> %d: %w", attackerID, defenderID, ErrNotAdjacent)
	}
	return nil
}

// BeginCombat declares an attack and appends a pending log entry holding
// snapshots of both regions. It panics when CanAttack would reject the pair.
func (g *Game) BeginCombat(attackerID, defenderID int) LogEntry {
	if err := g.CanAttack(attackerID, defenderID); err != nil {
		panic(fmt.Sprintf("engine: BeginCombat precondition violated: %v", err))
	}

	entry := LogEntry{
		TurnOfPlayer: g.turnOfPlayer,
		TurnCounter:  g.turnCounter,
		Region1:      g.board.Regions[attackerID].Clone(),
		Region2:      g.board.Regions[defenderID].Clone(),
	}
	g.log = append(g.log, entry)
	g.pending = true

	slog.Debug("combat declared",
		"player", g.turnOfPlayer,
		"attacker", attackerID,
		"defender", defenderID,
		"attacker_dice", entry.Region1.Dice,
		"defender_dice", entry.Region2.Dice,
	)
	return entry.Clone()
}

// CanComplete reports why CompleteCombat would reject the faces, or nil.
func (g *Game) CanComplete(dice1, dice2 []int) error {
	if !g.pending {
		return ErrNoPendingCombat
	}
	if len(dice1) == 0 || len(dice2) == 0 {
		return ErrEmptyRoll
	}
	return nil
}

// CompleteCombat records the rolled faces on the pending entry and resolves
// it: the higher sum takes the other region (ties hold for the defender),
// reinforcement moves dice onto the captured region, then the turn and win
// checks run. It panics when no combat is pending or either side is empty.
func (g *Game) CompleteCombat(dice1, dice2 []int) CombatOutcome {
	if err := g.CanComplete(dice1, dice2); err != nil {
		panic(fmt.Sprintf("engine: CompleteCombat precondition violated: %v", err))
	}

	e := &g.log[len(g.log)-1]
	e.Region1Dice = slices.Clone(dice1)
	e.Region2Dice = slices.Clone(dice2)
	g.pending = false

	sum1, sum2 := e.Sums()
	winner, loser := e.Region1, e.Region2
	if sum1 <= sum2 {
		winner, loser = e.Region2, e.Region1
	}

	captured := &g.board.Regions[loser.ID]
	held := &g.board.Regions[winner.ID]
	captured.Owner = winner.Owner

	reinforcement := 0
	if winner.Dice > 1 {
		reinforcement = 1 + g.rng.Intn(winner.Dice-1)
		captured.Dice = reinforcement
		held.Dice -= reinforcement - 1
	}
	captured.Dice = max(captured.Dice, 1)
	held.Dice = max(held.Dice, 1)

	out := CombatOutcome{
		Seq:            len(g.log) - 1,
		Entry:          e.Clone(),
		AttackerWon:    sum1 > sum2,
		WinningRegion:  winner.ID,
		CapturedRegion: loser.ID,
		NewOwner:       winner.Owner,
		Reinforcement:  reinforcement,
		PreviousPlayer: g.turnOfPlayer,
	}

	slog.Debug("combat resolved",
		"attacker", e.Region1.ID,
		"defender", e.Region2.ID,
		"sum_attacker", sum1,
		"sum_defender", sum2,
		"captured", loser.ID,
		"new_owner", winner.Owner,
		"reinforcement", reinforcement,
	)

	out.TurnAdvanced = g.advanceTurnIfBlocked()
	out.TurnOfPlayer = g.turnOfPlayer
	out.TurnCounter = g.turnCounter

	if g.checkWinner() {
		w := g.winner
		out.GameOver = &w
	} else {
		out.Redrawn = true
	}
	return out
}
