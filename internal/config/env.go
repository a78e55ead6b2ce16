package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds process-level overrides read from the environment (and a .env
// file in the working directory, if present). Zero values mean "not set".
type Env struct {
	ConfigPath string `env:"SOUND_PRIORITY_CONFIG"`
	LogLevel   string `env:"SOUND_PRIORITY_LOG_LEVEL"`
	LogFormat  string `env:"SOUND_PRIORITY_LOG_FORMAT"`
	Backend    string `env:"SOUND_PRIORITY_BACKEND"`
	ListenPort int    `env:"SOUND_PRIORITY_LISTEN_PORT"`
	AuthToken  string `env:"SOUND_PRIORITY_AUTH_TOKEN"`
}

func LoadEnv() (Env, error) {
	// A missing .env file is the common case.
	_ = godotenv.Load()

	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// Apply copies every set override onto cfg.
func (e Env) Apply(cfg *Config) {
	if e.LogLevel != "" {
		cfg.Log.Level = e.LogLevel
	}
	if e.LogFormat != "" {
		cfg.Log.Format = e.LogFormat
	}
	if e.ListenPort > 0 {
		cfg.Server.Port = e.ListenPort
	}
	if e.AuthToken != "" {
		cfg.Server.AuthToken = e.AuthToken
	}
}
