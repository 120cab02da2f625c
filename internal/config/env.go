// Package config reads deployment settings from the environment. Game
// content and tuning live in configs/ and are loaded elsewhere.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Env struct {
	DeployEnv string `env:"DEPLOY_ENV" envDefault:"dev"`

	// Ledger selects the player store: memory, sqlite, file or remote.
	Ledger         string `env:"LB_LEDGER" envDefault:"sqlite"`
	LedgerEndpoint string `env:"LB_LEDGER_ENDPOINT"`
	LedgerToken    string `env:"LB_LEDGER_TOKEN"`

	// Mint selects the minting service: local, bucket or none.
	Mint        string `env:"LB_MINT" envDefault:"local"`
	MintBaseURI string `env:"LB_MINT_BASE_URI" envDefault:"lorebound://nft"`

	R2 R2 `envPrefix:"LB_R2_"`

	EnableAdminHTTP bool     `env:"LB_ENABLE_ADMIN_HTTP"`
	AllowedOrigins  []string `env:"LB_ALLOWED_ORIGINS" envSeparator:","`
}

// R2 is an S3-compatible bucket used for nft metadata and snapshot mirroring.
type R2 struct {
	Endpoint        string `env:"ENDPOINT"`
	Bucket          string `env:"BUCKET"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"`
	Mirror          bool   `env:"MIRROR"`
	UploadWorkers   int    `env:"UPLOAD_WORKERS" envDefault:"2"`
}

func (r R2) Configured() bool {
	return r.Endpoint != "" && r.Bucket != "" && r.AccessKeyID != "" && r.SecretAccessKey != ""
}

// Load reads the given dotenv files, skipping missing ones, then parses the
// environment. Variables already set win over dotenv values.
func Load(dotenvPaths ...string) (Env, error) {
	for _, p := range dotenvPaths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Env{}, fmt.Errorf("load %s: %w", p, err)
		}
	}
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	e.Ledger = strings.ToLower(strings.TrimSpace(e.Ledger))
	e.Mint = strings.ToLower(strings.TrimSpace(e.Mint))
	if err := e.Validate(); err != nil {
		return Env{}, err
	}
	return e, nil
}

func (e Env) Validate() error {
	switch e.Ledger {
	case "memory", "sqlite", "file":
	case "remote":
		if strings.TrimSpace(e.LedgerEndpoint) == "" {
			return fmt.Errorf("LB_LEDGER=remote requires LB_LEDGER_ENDPOINT")
		}
	default:
		return fmt.Errorf("unknown LB_LEDGER %q (want memory, sqlite, file or remote)", e.Ledger)
	}
	switch e.Mint {
	case "local", "none":
	case "bucket":
		if !e.R2.Configured() {
			return fmt.Errorf("LB_MINT=bucket requires LB_R2_ENDPOINT/LB_R2_BUCKET/LB_R2_ACCESS_KEY_ID/LB_R2_SECRET_ACCESS_KEY")
		}
	default:
		return fmt.Errorf("unknown LB_MINT %q (want local, bucket or none)", e.Mint)
	}
	if e.R2.Mirror && !e.R2.Configured() {
		return fmt.Errorf("LB_R2_MIRROR=true but LB_R2_ENDPOINT/LB_R2_BUCKET/LB_R2_ACCESS_KEY_ID/LB_R2_SECRET_ACCESS_KEY are not fully set")
	}
	return nil
}

func (e Env) Production() bool {
	switch strings.ToLower(strings.TrimSpace(e.DeployEnv)) {
	case "prod", "production", "staging":
		return true
	}
	return false
}
