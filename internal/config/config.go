package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full service configuration. Values load from an optional TOML
// file and can be overridden per field by GITBRIDGE_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	DocStore DocStoreConfig `toml:"docstore"`
	History  HistoryConfig  `toml:"history"`
	Journal  JournalConfig  `toml:"journal"`
	Push     PushConfig     `toml:"push"`
	Blob     BlobConfig     `toml:"blob"`
}

type ServerConfig struct {
	ListenAddr         string `toml:"listen_addr"`
	JWTSecret          string `toml:"jwt_secret"`
	InternalHMACSecret string `toml:"internal_hmac_secret"`
	MaxBodyBytes       int64  `toml:"max_body_bytes"`
}

type DocStoreConfig struct {
	BaseURL   string `toml:"base_url"`
	AuthToken string `toml:"auth_token"`
}

type HistoryConfig struct {
	BaseURL string `toml:"base_url"`
}

type JournalConfig struct {
	DSN string `toml:"dsn"`
}

type PushConfig struct {
	DumpDir string   `toml:"dump_dir"`
	Timeout duration `toml:"timeout"`
}

type BlobConfig struct {
	BaseURL     string   `toml:"base_url"`
	TokenSecret string   `toml:"token_secret"`
	TokenTTL    duration `toml:"token_ttl"`
}

// duration lets TOML carry values like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:   ":3056",
			MaxBodyBytes: 1 << 20,
		},
		Journal: JournalConfig{
			DSN: "memory://",
		},
		Push: PushConfig{
			DumpDir: "dump",
			Timeout: duration{10 * time.Minute},
		},
		Blob: BlobConfig{
			TokenTTL: duration{5 * time.Minute},
		},
	}
}

// Load reads the TOML file at path (skipped when path is empty), then applies
// environment overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	stringEnv("GITBRIDGE_LISTEN_ADDR", &c.Server.ListenAddr)
	stringEnv("GITBRIDGE_JWT_SECRET", &c.Server.JWTSecret)
	stringEnv("GITBRIDGE_INTERNAL_HMAC_SECRET", &c.Server.InternalHMACSecret)
	int64Env("GITBRIDGE_MAX_BODY_BYTES", &c.Server.MaxBodyBytes)
	stringEnv("GITBRIDGE_DOCSTORE_URL", &c.DocStore.BaseURL)
	stringEnv("GITBRIDGE_DOCSTORE_TOKEN", &c.DocStore.AuthToken)
	stringEnv("GITBRIDGE_HISTORY_URL", &c.History.BaseURL)
	stringEnv("GITBRIDGE_JOURNAL_DSN", &c.Journal.DSN)
	stringEnv("GITBRIDGE_DUMP_DIR", &c.Push.DumpDir)
	durationEnv("GITBRIDGE_PUSH_TIMEOUT", &c.Push.Timeout)
	stringEnv("GITBRIDGE_BLOB_BASE_URL", &c.Blob.BaseURL)
	stringEnv("GITBRIDGE_BLOB_TOKEN_SECRET", &c.Blob.TokenSecret)
	durationEnv("GITBRIDGE_BLOB_TOKEN_TTL", &c.Blob.TokenTTL)
}

func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.DocStore.BaseURL) == "" {
		missing = append(missing, "docstore.base_url")
	}
	if strings.TrimSpace(c.History.BaseURL) == "" {
		missing = append(missing, "history.base_url")
	}
	if strings.TrimSpace(c.Blob.BaseURL) == "" {
		missing = append(missing, "blob.base_url")
	}
	if strings.TrimSpace(c.Blob.TokenSecret) == "" {
		missing = append(missing, "blob.token_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func stringEnv(key string, target *string) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		*target = value
	}
}

func int64Env(key string, target *int64) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
		*target = parsed
	}
}

func durationEnv(key string, target *duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
		target.Duration = parsed
	}
}
