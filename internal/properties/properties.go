package properties

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Settings carries the environment-driven configuration. Credential
// flags on the command line override their environment counterparts.
type Settings struct {
	CopernicusUsername     string `env:"COPERNICUS_USERNAME"`
	CopernicusPassword     string `env:"COPERNICUS_PASSWORD"`
	CopernicusClientID     string `env:"COPERNICUS_CLIENT_ID"`
	CopernicusClientSecret string `env:"COPERNICUS_CLIENT_SECRET"`
	CopernicusTokenURL     string `env:"COPERNICUS_TOKEN_URL"`
	Scratch                string `env:"COARDAS_SCRATCH"`
	WebhookURL             string `env:"COARDAS_WEBHOOK_URL"`
	LogLevel               string `env:"COARDAS_LOG_LEVEL" envDefault:"info"`
}

// Load reads .env when present, then the environment.
func Load() (Settings, error) {
	// .env is a convenience for local runs, its absence is fine
	_ = godotenv.Load(".env")

	s := Settings{}
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if s.Scratch == "" {
		s.Scratch = filepath.Join(os.TempDir(), "coardas")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks cross-field consistency.
func (s Settings) Validate() error {
	if s.CopernicusTokenURL != "" && (s.CopernicusClientID == "" || s.CopernicusClientSecret == "") {
		return fmt.Errorf("COPERNICUS_TOKEN_URL requires COPERNICUS_CLIENT_ID and COPERNICUS_CLIENT_SECRET")
	}
	if s.CopernicusTokenURL == "" && s.CopernicusClientID != "" {
		return fmt.Errorf("COPERNICUS_CLIENT_ID requires COPERNICUS_TOKEN_URL")
	}
	return nil
}
