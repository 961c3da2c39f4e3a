// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config carries every tunable of the chat server and its economy. Economic
// constants are configuration, not protocol: deployments vary the reward
// formula, drift band, and rank thresholds without code changes.
type Config struct {
	Addr      string `env:"EMPIRE_ADDR" envDefault:":5001"`
	BaseURL   string `env:"EMPIRE_BASE_URL" envDefault:"http://localhost:5001"`
	UploadDir string `env:"EMPIRE_UPLOAD_DIR" envDefault:"uploads"`

	// Empty DatabaseURL selects the in-memory ledger.
	DatabaseURL string `env:"DATABASE_URL"`

	TickEvery    time.Duration `env:"EMPIRE_TICK_EVERY" envDefault:"60s"`
	InterestRate float64       `env:"EMPIRE_INTEREST_RATE" envDefault:"1.01"`
	MarketLow    float64       `env:"EMPIRE_MARKET_LOW" envDefault:"0.90"`
	MarketHigh   float64       `env:"EMPIRE_MARKET_HIGH" envDefault:"1.15"`

	RewardBase    int64 `env:"EMPIRE_REWARD_BASE" envDefault:"100"`
	RewardPerChar int64 `env:"EMPIRE_REWARD_PER_CHAR" envDefault:"5"`
	LargeMsgChars int   `env:"EMPIRE_LARGE_MSG_CHARS" envDefault:"1000"`

	FarmEvery  time.Duration `env:"EMPIRE_FARM_EVERY" envDefault:"3s"`
	FarmReward int64         `env:"EMPIRE_FARM_REWARD" envDefault:"5000"`

	RankNotable      int64 `env:"EMPIRE_RANK_NOTABLE" envDefault:"100000"`
	RankElite        int64 `env:"EMPIRE_RANK_ELITE" envDefault:"1000000"`
	RankTranscendent int64 `env:"EMPIRE_RANK_TRANSCENDENT" envDefault:"10000000"`

	RankingTop int `env:"EMPIRE_RANKING_TOP" envDefault:"10"`
	ReplayLast int `env:"EMPIRE_REPLAY_LAST" envDefault:"20"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"EMPIRE_GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.TickEvery <= 0 || cfg.FarmEvery <= 0 {
		return cfg, fmt.Errorf("tick periods must be positive")
	}
	if cfg.MarketLow <= 0 || cfg.MarketHigh < cfg.MarketLow {
		return cfg, fmt.Errorf("market band %v-%v is invalid", cfg.MarketLow, cfg.MarketHigh)
	}
	if cfg.InterestRate < 1 {
		return cfg, fmt.Errorf("interest rate %v would shrink banked funds", cfg.InterestRate)
	}
	if cfg.RankingTop <= 0 {
		cfg.RankingTop = 10
	}
	if cfg.ReplayLast < 0 {
		cfg.ReplayLast = 0
	}
	return cfg, nil
}
