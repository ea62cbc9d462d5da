// Command stackrank serves a hex-region dice strategy game over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/talgya/stackrank/internal/api"
	"github.com/talgya/stackrank/internal/bot"
	"github.com/talgya/stackrank/internal/config"
	"github.com/talgya/stackrank/internal/dice"
	"github.com/talgya/stackrank/internal/engine"
	"github.com/talgya/stackrank/internal/entropy"
	"github.com/talgya/stackrank/internal/persistence"
	"github.com/talgya/stackrank/internal/world"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// ── Randomness ────────────────────────────────────────────────────
	seed := cfg.Game.Seed
	if seed == 0 {
		if seed, err = entropy.NewSeed(); err != nil {
			slog.Error("failed to draw seed", "error", err)
			os.Exit(1)
		}
	}

	var rolls dice.Source = dice.NewLocked(seed ^ 0x5eed)
	if rc := entropy.NewClient(cfg.Entropy.RandomOrgKey); rc != nil {
		rolls = rc
		slog.Info("combat dice from random.org")
	} else {
		slog.Warn("RANDOM_ORG_KEY not set, combat dice use a seeded local source")
	}
	reinf := dice.NewLocked(seed)

	// ── Board ─────────────────────────────────────────────────────────
	gen := cfg.Game.GenConfig()
	gen.Seed = seed
	board, err := world.Generate(gen)
	if err != nil {
		slog.Error("board generation failed", "seed", seed, "error", err)
		os.Exit(1)
	}
	slog.Info("board generated",
		"seed", seed,
		"players", gen.Players,
		"regions", len(board.Regions),
		"hexes", board.HexCount(),
	)
	for p, n := range board.DiceByOwner() {
		slog.Debug("starting dice", "player", p, "dice", n)
	}

	id := uuid.NewString()
	session := engine.NewSession(id, engine.NewGame(board, gen.Players, reinf))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Archive ───────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Archive.Enabled {
		if dir := filepath.Dir(cfg.Archive.Path); dir != "." {
			os.MkdirAll(dir, 0755)
		}
		db, err = persistence.Open(cfg.Archive.Path)
		if err != nil {
			slog.Error("failed to open archive", "path", cfg.Archive.Path, "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.CreateMatch(id, board, gen.Players); err != nil {
			slog.Error("failed to archive match", "match", id, "error", err)
		}
		total, finished, err := db.CountMatches()
		if err == nil {
			slog.Info("archive opened", "path", cfg.Archive.Path, "matches", total, "finished", finished)
		}

		rec := persistence.NewRecorder(db, session)
		defer rec.Close()
		go rec.Run(ctx)
	}

	// ── Bots ──────────────────────────────────────────────────────────
	if len(cfg.Bot.Players) > 0 {
		players := make(map[int]bool, len(cfg.Bot.Players))
		for _, p := range cfg.Bot.Players {
			players[p] = true
		}
		runner := &bot.Runner{
			Session:   session,
			Dice:      rolls,
			Choice:    dice.NewLocked(seed + 1),
			Players:   players,
			Interval:  cfg.Bot.Interval(),
			RollDelay: cfg.Bot.RollDelay(),
		}
		go func() {
			// Keep playing across games started through the API.
			for {
				err := runner.Run(ctx)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					slog.Warn("bot runner stopped", "error", err)
				}
				if err := waitForNewGame(ctx, session); err != nil {
					return
				}
			}
		}()
		slog.Info("bots enabled", "players", cfg.Bot.Players)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("STACKRANK_ADMIN_KEY not set, POST /api/v1/new is disabled")
	}
	apiServer := &api.Server{
		Session:        session,
		Dice:           rolls,
		Reinf:          reinf,
		Gen:            cfg.Game.GenConfig(),
		Archive:        db,
		Port:           cfg.Server.Port,
		AdminKey:       cfg.Server.AdminKey,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
	apiServer.Start()

	fmt.Printf("\nstackrank: %d players on %d regions (seed %d)\n", gen.Players, len(board.Regions), seed)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	cancel()
	if err := apiServer.Close(); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	fmt.Println("stackrank stopped.")
}

// waitForNewGame blocks until the session announces a new match.
func waitForNewGame(ctx context.Context, s *engine.Session) error {
	sub, events := s.Subscribe(16)
	defer s.Unsubscribe(sub)

	var over bool
	s.View(func(g *engine.Game) { _, over = g.Winner() })
	if !over {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return fmt.Errorf("session closed")
			}
			if e.Type == engine.EventNewGame {
				return nil
			}
		}
	}
}
