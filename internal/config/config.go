package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	HTTPAddr       string     `env:"HTTP_ADDR" envDefault:":8000"`
	LogLevel       slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	DataDir        string     `env:"DATA_DIR" envDefault:"data"`
	ProblemBankDir string     `env:"PROBLEM_BANK_DIR" envDefault:"problemBank"`

	PackageID    string `env:"PACKAGE_ID" envDefault:"0xeecad5c95376a7c48a4c527901e78696008ff15b388797601468da7938dd47a3"`
	GameConfigID string `env:"GAME_CONFIG_ID" envDefault:"0x069b6b5d7aec5dbb7e6dce9f0358876eca0ccb5568194ba623ad3f55fc704ad5"`

	EvidenceBackend string `env:"EVIDENCE_BACKEND" envDefault:"file"`

	WalrusPublisherURL   string        `env:"WALRUS_PUBLISHER_URL"`
	WalrusEpochs         int           `env:"WALRUS_EPOCHS" envDefault:"5"`
	WalrusUploadTimeout  time.Duration `env:"WALRUS_UPLOAD_TIMEOUT" envDefault:"20s"`
	WalrusRequireSuccess bool          `env:"WALRUS_REQUIRE_SUCCESS" envDefault:"false"`

	AdminTokenHash string   `env:"ADMIN_TOKEN_HASH"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads an optional .env file from the working directory and then
// parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.EvidenceBackend != BackendFile && cfg.EvidenceBackend != BackendSQLite {
		return nil, fmt.Errorf("EVIDENCE_BACKEND must be %q or %q, got %q", BackendFile, BackendSQLite, cfg.EvidenceBackend)
	}
	if cfg.WalrusEpochs < 1 {
		cfg.WalrusEpochs = 1
	}
	return &cfg, nil
}

// KeyPath holds the raw ed25519 seed.
func (c *Config) KeyPath() string { return filepath.Join(c.DataDir, "oracle.key") }

// PubKeyPath holds the public key in hex and as a byte list.
func (c *Config) PubKeyPath() string { return filepath.Join(c.DataDir, "key.txt") }

func (c *Config) HistoryPath() string { return filepath.Join(c.DataDir, "history.json") }

func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "oracle.db") }
