// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/stackrank/internal/world"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "./configs/stackrank.yaml"

// Config holds all server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Game    GameConfig    `yaml:"game"`
	Archive ArchiveConfig `yaml:"archive"`
	Bot     BotConfig     `yaml:"bot"`
	Entropy EntropyConfig `yaml:"entropy"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"admin_key"`
	LogLevel string `yaml:"log_level"` // debug, info, warn, error

	// TrustedProxies may set X-Forwarded-For for rate limiting.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// GameConfig holds board generation settings.
type GameConfig struct {
	Players          int   `yaml:"players"`
	Seed             int64 `yaml:"seed"` // 0 = random
	BoardSize        int   `yaml:"board_size"`
	PatchesPerPlayer int   `yaml:"patches_per_player"`
	DicePerPatch     int   `yaml:"dice_per_patch"`
	MaxDicePerRegion int   `yaml:"max_dice_per_region"`
	MaxAttempts      int   `yaml:"max_attempts"`
}

// ArchiveConfig holds match archive settings.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// BotConfig holds settings for computer-controlled players.
type BotConfig struct {
	Players []int `yaml:"players"` // Player indices the bot moves for

	// Unset takes the default; 0 means no pause.
	IntervalMs  *int `yaml:"interval_ms"`
	RollDelayMs *int `yaml:"roll_delay_ms"`
}

// EntropyConfig holds the random.org key for dice.
type EntropyConfig struct {
	RandomOrgKey string `yaml:"random_org_key"`
}

// Interval returns the pause between bot attacks.
func (b BotConfig) Interval() time.Duration {
	return millis(b.IntervalMs)
}

// RollDelay returns the pause between a bot's attack and its roll.
func (b BotConfig) RollDelay() time.Duration {
	return millis(b.RollDelayMs)
}

func millis(ms *int) time.Duration {
	if ms == nil {
		return 0
	}
	return time.Duration(*ms) * time.Millisecond
}

// GenConfig converts the game section to generator parameters.
func (g GameConfig) GenConfig() world.GenConfig {
	return world.GenConfig{
		Players:          g.Players,
		BoardSize:        g.BoardSize,
		PatchesPerPlayer: g.PatchesPerPlayer,
		DicePerPatch:     g.DicePerPatch,
		MaxDicePerRegion: g.MaxDicePerRegion,
		MaxAttempts:      g.MaxAttempts,
		Seed:             g.Seed,
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads from CONFIG_PATH, or DefaultPath when unset.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return Load(path)
}

func (c *Config) applyDefaults() {
	def := world.DefaultGenConfig(2)

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Game.Players == 0 {
		c.Game.Players = def.Players
	}
	if c.Game.BoardSize == 0 {
		c.Game.BoardSize = def.BoardSize
	}
	if c.Game.PatchesPerPlayer == 0 {
		c.Game.PatchesPerPlayer = def.PatchesPerPlayer
	}
	if c.Game.DicePerPatch == 0 {
		c.Game.DicePerPatch = def.DicePerPatch
	}
	if c.Game.MaxDicePerRegion == 0 {
		c.Game.MaxDicePerRegion = def.MaxDicePerRegion
	}
	if c.Game.MaxAttempts == 0 {
		c.Game.MaxAttempts = def.MaxAttempts
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "stackrank.db"
	}
	if c.Bot.IntervalMs == nil {
		c.Bot.IntervalMs = intPtr(1000)
	}
	if c.Bot.RollDelayMs == nil {
		c.Bot.RollDelayMs = intPtr(3000)
	}
}

func intPtr(v int) *int { return &v }

func (c *Config) applyEnv() {
	if v := os.Getenv("STACKRANK_ADMIN_KEY"); v != "" {
		c.Server.AdminKey = v
	}
	if v := os.Getenv("RANDOM_ORG_KEY"); v != "" {
		c.Entropy.RandomOrgKey = v
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Game.Players < 2 || c.Game.Players > 8 {
		return fmt.Errorf("game.players must be 2-8, got %d", c.Game.Players)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Bot.Interval() < 0 || c.Bot.RollDelay() < 0 {
		return fmt.Errorf("bot: interval_ms and roll_delay_ms must not be negative")
	}
	for _, p := range c.Bot.Players {
		if p < 0 || p >= c.Game.Players {
			return fmt.Errorf("bot.players: no player %d in a %d-player game", p, c.Game.Players)
		}
	}
	if err := c.Game.GenConfig().Validate(); err != nil {
		return fmt.Errorf("game: %w", err)
	}
	return nil
}
