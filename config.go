package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はサーバーの起動設定。必須項目が欠けていれば起動させない。
type Config struct {
	RPID        string        `env:"RP_ID,required"`
	ClientURL   string        `env:"CLIENT_URL,required"`
	Port        string        `env:"PORT,required"`
	TokenSecret string        `env:"TOKEN_SECRET,required"`
	RPName      string        `env:"RP_NAME" envDefault:"Passkey Server"`
	DBPath      string        `env:"DB_PATH"`
	CeremonyTTL time.Duration `env:"CEREMONY_TTL" envDefault:"60s"`
}

// loadConfig は環境変数から設定を読み込む。
func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.CeremonyTTL <= 0 {
		return Config{}, fmt.Errorf("CEREMONY_TTL must be positive, got %s", cfg.CeremonyTTL)
	}
	return cfg, nil
}
