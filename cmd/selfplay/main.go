// Command selfplay runs headless bot-versus-bot games and reports how they
// went. Games are reproducible from -seed and can be written to an archive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/talgya/stackrank/internal/bot"
	"github.com/talgya/stackrank/internal/dice"
	"github.com/talgya/stackrank/internal/engine"
	"github.com/talgya/stackrank/internal/entropy"
	"github.com/talgya/stackrank/internal/persistence"
	"github.com/talgya/stackrank/internal/world"
)

type stats struct {
	games    int
	stalled  int
	failed   int
	wins     map[int]int
	combats  int
	turns    int
	captures map[int]int
}

func main() {
	var (
		games    int
		players  int
		seed     int64
		dbPath   string
		maxSteps int
		verbose  bool
	)
	flag.IntVar(&games, "games", 10, "number of games to play")
	flag.IntVar(&players, "players", 4, "players per game (2-8)")
	flag.Int64Var(&seed, "seed", 0, "base seed; game i uses seed+i (0 = random)")
	flag.StringVar(&dbPath, "db", "", "archive games to this sqlite file")
	flag.IntVar(&maxSteps, "max-steps", 20000, "moves allowed per game before it counts as stalled")
	flag.BoolVar(&verbose, "v", false, "log every combat")
	flag.Parse()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if seed == 0 {
		var err error
		if seed, err = entropy.NewSeed(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	var db *persistence.DB
	if dbPath != "" {
		var err error
		if db, err = persistence.Open(dbPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: open archive: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	st := stats{wins: make(map[int]int), captures: make(map[int]int)}
	for i := 0; i < games && ctx.Err() == nil; i++ {
		if err := playOne(ctx, &st, db, players, seed+int64(i), maxSteps); err != nil {
			slog.Warn("game failed", "seed", seed+int64(i), "error", err)
		}
	}

	report(st, players, seed)
	if db != nil {
		if err := db.SaveMeta("last_selfplay_seed", fmt.Sprint(seed)); err != nil {
			slog.Warn("save meta failed", "error", err)
		}
	}
}

func playOne(ctx context.Context, st *stats, db *persistence.DB, players int, seed int64, maxSteps int) error {
	board, err := world.GenerateBoard(players, seed)
	if err != nil {
		st.failed++
		return err
	}

	id := uuid.NewString()
	session := engine.NewSession(id, engine.NewGame(board, players, dice.NewLocked(seed)))
	if db != nil {
		if err := db.CreateMatch(id, board, players); err != nil {
			return fmt.Errorf("archive match: %w", err)
		}
	}

	combats := 0
	runner := &bot.Runner{
		Session:  session,
		Dice:     dice.NewLocked(seed + 1),
		Choice:   dice.NewLocked(seed + 2),
		MaxSteps: maxSteps,
		OnOutcome: func(out engine.CombatOutcome) {
			combats++
			st.captures[out.NewOwner]++
			if db == nil {
				return
			}
			if err := db.AppendEntry(id, out.Seq, out.Entry); err != nil {
				slog.Warn("archive entry failed", "match", id, "error", err)
			}
			if out.GameOver != nil {
				if err := db.FinishMatch(id, *out.GameOver); err != nil {
					slog.Warn("archive result failed", "match", id, "error", err)
				}
			}
		},
	}

	err = runner.Run(ctx)
	st.combats += combats
	switch {
	case errors.Is(err, bot.ErrStalled):
		st.stalled++
		return err
	case err != nil:
		return err
	}

	snap := session.Snapshot()
	st.games++
	st.turns += snap.TurnCounter
	if snap.Winner != nil {
		st.wins[*snap.Winner]++
	}
	slog.Info("game finished", "seed", seed, "winner", snap.Winner, "combats", combats, "turns", snap.TurnCounter)
	return nil
}

func report(st stats, players int, seed int64) {
	fmt.Printf("selfplay: %d finished, %d stalled, %d failed (base seed %d)\n", st.games, st.stalled, st.failed, seed)
	if st.games > 0 {
		fmt.Printf("  avg combats: %.1f\n", float64(st.combats)/float64(st.games+st.stalled))
		fmt.Printf("  avg turns:   %.1f\n", float64(st.turns)/float64(st.games))
	}
	for p := 0; p < players; p++ {
		fmt.Printf("  player %d: %d wins, %d captures\n", p, st.wins[p], st.captures[p])
	}
}
