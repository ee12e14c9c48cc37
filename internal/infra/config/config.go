package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir" toml:"data_dir"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Runner    RunnerConfig    `yaml:"runner" toml:"runner"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Schedules SchedulesConfig `yaml:"schedules" toml:"schedules"`
	Gateway   GatewayConfig   `yaml:"gateway" toml:"gateway"`
	Export    ExportConfig    `yaml:"export" toml:"export"`
	Logger    LoggerConfig    `yaml:"logger" toml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer" toml:"tracer"`
	Includes  []string        `yaml:"includes,omitempty" toml:"includes,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// StorageConfig holds the SQLite settings of the backend.
type StorageConfig struct {
	Path string `yaml:"path" toml:"path"` // default: <data_dir>/ordito.db
}

// RunnerConfig holds shell execution settings.
type RunnerConfig struct {
	Shell       string   `yaml:"shell" toml:"shell"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
	OutputLimit int      `yaml:"output_limit" toml:"output_limit"`
	MaxDetached int      `yaml:"max_detached" toml:"max_detached"`
	WorkDir     string   `yaml:"work_dir,omitempty" toml:"work_dir,omitempty"`
}

// SchedulerConfig holds cron engine settings.
type SchedulerConfig struct {
	Timezone    string   `yaml:"timezone" toml:"timezone"` // IANA name or "Local"
	TaskTimeout Duration `yaml:"task_timeout" toml:"task_timeout"`
}

// SchedulesConfig holds client-side schedule rules.
type SchedulesConfig struct {
	OrphanPolicy string `yaml:"orphan_policy" toml:"orphan_policy"` // "cascade" or "keep"
}

// GatewayConfig holds WebSocket gateway settings for both the server and the
// client side.
type GatewayConfig struct {
	Addr           string          `yaml:"addr" toml:"addr"`
	URL            string          `yaml:"url" toml:"url"`
	Token          string          `yaml:"token,omitempty" toml:"token,omitempty"` // client token
	Auth           AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	ConnectLimit   ConnectLimit    `yaml:"connect_limit" toml:"connect_limit"`
	Breaker        BreakerConfig   `yaml:"breaker" toml:"breaker"`
	RequestTimeout Duration        `yaml:"request_timeout" toml:"request_timeout"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens,omitempty" toml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token. A read-only token may list
// and validate but not change or run anything.
type TokenConfig struct {
	Token    string `yaml:"token" toml:"token"`
	Name     string `yaml:"name" toml:"name"`
	ReadOnly bool   `yaml:"read_only,omitempty" toml:"read_only,omitempty"`
}

// RateLimitConfig limits RPC requests per connection. Zero disables it.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" toml:"per_second"`
	Burst     int     `yaml:"burst" toml:"burst"`
}

// ConnectLimit limits HTTP requests, WebSocket upgrades included, per
// client IP. Zero disables it.
type ConnectLimit struct {
	PerMinute int `yaml:"per_minute" toml:"per_minute"`
	Burst     int `yaml:"burst" toml:"burst"`
}

// BreakerConfig configures the client circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32   `yaml:"max_failures" toml:"max_failures"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"`
}

// ExportConfig holds data export settings.
type ExportConfig struct {
	Dir string `yaml:"dir" toml:"dir"` // default: <data_dir>/exports
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Exporter string `yaml:"exporter" toml:"exporter"`
}

// defaultDataDir returns $HOME/.ordito, or "./data" when $HOME is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".ordito")
}

// Defaults returns a Config with sensible defaults. Storage and export paths
// stay empty and are derived from DataDir by Load.
func Defaults() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Runner: RunnerConfig{
			Shell:       "sh",
			Timeout:     Duration(30 * time.Second),
			OutputLimit: 1 << 20,
			MaxDetached: 32,
		},
		Scheduler: SchedulerConfig{
			Timezone:    "Local",
			TaskTimeout: Duration(5 * time.Minute),
		},
		Schedules: SchedulesConfig{
			OrphanPolicy: "cascade",
		},
		Gateway: GatewayConfig{
			Addr: "127.0.0.1:8090",
			URL:  "ws://127.0.0.1:8090/ws",
			RateLimit: RateLimitConfig{
				PerSecond: 20,
				Burst:     40,
			},
			ConnectLimit: ConnectLimit{
				PerMinute: 120,
				Burst:     20,
			},
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     Duration(30 * time.Second),
			},
			RequestTimeout: Duration(60 * time.Second),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Location returns the scheduler time zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Scheduler.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Scheduler.Timezone)
	}
}

// resolvePaths fills the paths derived from DataDir.
func (c *Config) resolvePaths() {
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "ordito.db")
	}
	if c.Export.Dir == "" {
		c.Export.Dir = filepath.Join(c.DataDir, "exports")
	}
}

// unmarshal decodes data onto cfg, picking TOML for .toml files and YAML
// otherwise.
func unmarshal(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Load reads a YAML or TOML config file, applies env var overrides, and
// decrypts secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := unmarshal(absPath, data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		if err := newIncluder(absPath).apply(cfg, filepath.Dir(absPath), 0); err != nil {
			return nil, err
		}

		// Second pass so the main file takes precedence over includes.
		if err := unmarshal(absPath, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("ORDITO_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	cfg.resolvePaths()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps ORDITO_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORDITO_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ORDITO_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("ORDITO_EXPORT_DIR"); v != "" {
		cfg.Export.Dir = v
	}
	if v := os.Getenv("ORDITO_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ORDITO_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("ORDITO_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("ORDITO_TRACER_ENABLED"); v != "" {
		cfg.Tracer.Enabled = v == "true"
	}
	if v := os.Getenv("ORDITO_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("ORDITO_RUNNER_SHELL"); v != "" {
		cfg.Runner.Shell = v
	}
	if v := os.Getenv("ORDITO_RUNNER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Runner.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("ORDITO_RUNNER_MAX_DETACHED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Runner.MaxDetached = n
		}
	}
	if v := os.Getenv("ORDITO_SCHEDULER_TIMEZONE"); v != "" {
		cfg.Scheduler.Timezone = v
	}
	if v := os.Getenv("ORDITO_ORPHAN_POLICY"); v != "" {
		cfg.Schedules.OrphanPolicy = v
	}
	if v := os.Getenv("ORDITO_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("ORDITO_GATEWAY_URL"); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv("ORDITO_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	// ORDITO_GATEWAY_TOKENS="name:token,name2:token2" replaces the server token list.
	if v := os.Getenv("ORDITO_GATEWAY_TOKENS"); v != "" {
		var tokens []TokenConfig
		for _, pair := range splitAndTrim(v, ",") {
			name, token, ok := strings.Cut(pair, ":")
			if !ok || token == "" {
				continue
			}
			tokens = append(tokens, TokenConfig{Name: strings.TrimSpace(name), Token: strings.TrimSpace(token)})
		}
		cfg.Gateway.Auth.Tokens = tokens
	}
	if v := os.Getenv("ORDITO_GATEWAY_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Gateway.RateLimit.PerSecond = f
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets decrypts "enc:..." gateway tokens in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	if strings.HasPrefix(cfg.Gateway.Token, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.Gateway.Token, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("gateway token: %w", err)
		}
		cfg.Gateway.Token = decrypted
	}

	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
			}
			cfg.Gateway.Auth.Tokens[i].Token = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result is hex(salt) + ":" + hex(nonce+ciphertext).
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
