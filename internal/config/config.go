package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultPort      = 3000
	DefaultFilesDir  = "files"
	DefaultTmpDir    = "tmp"
	DefaultAPIKey    = "dev-key"
	DefaultMaxUpload = 50 << 20

	// MaxUploadCeiling leaves headroom for the multipart envelope added on
	// top of MaxUpload when the request body is capped.
	MaxUploadCeiling = math.MaxInt64 - 4<<20

	// APIKeyHeader carries the shared secret on every request.
	APIKeyHeader = "X-API-Key"
)

// Config is built once at startup and never mutated afterwards.
// Components receive it (or the fields they need) explicitly.
type Config struct {
	// Port is the TCP port bound on all interfaces.
	Port int

	// FilesDir holds the stored files (flat, no subdirectories).
	FilesDir string

	// TmpDir is the scratch area for in-flight uploads and cached thumbnails.
	TmpDir string

	// APIKey is compared against the X-API-Key header.
	APIKey string

	// APIKeyBcrypt, when set, replaces the plain APIKey comparison with a
	// bcrypt check. Generate with: lanbox hashkey -k <key>
	APIKeyBcrypt string

	// MaxUpload is the largest accepted file part, in bytes.
	MaxUpload int64

	// CORSOrigins lists allowed browser origins ("*" allows any).
	CORSOrigins []string

	// ShowQR prints a QR code of the LAN URL at startup.
	ShowQR bool
}

// Addr is the listen address; the service binds every interface.
func (c Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// UsingDefaultKey reports whether the well-known placeholder secret is active.
func (c Config) UsingDefaultKey() bool {
	return c.APIKeyBcrypt == "" && c.APIKey == DefaultAPIKey
}

// FromEnv reads the configuration through getenv (usually os.Getenv).
// Relative directories are resolved against the working directory.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:         DefaultPort,
		FilesDir:     DefaultFilesDir,
		TmpDir:       DefaultTmpDir,
		APIKey:       DefaultAPIKey,
		APIKeyBcrypt: strings.TrimSpace(getenv("API_KEY_BCRYPT")),
		MaxUpload:    DefaultMaxUpload,
		CORSOrigins:  []string{"*"},
		ShowQR:       true,
	}

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return Config{}, fmt.Errorf("config: invalid PORT %q", v)
		}
		cfg.Port = p
	}
	if v := strings.TrimSpace(getenv("FILES_DIR")); v != "" {
		cfg.FilesDir = v
	}
	if v := strings.TrimSpace(getenv("TMP_DIR")); v != "" {
		cfg.TmpDir = v
	}
	if v := getenv("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(getenv("MAX_UPLOAD")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid MAX_UPLOAD %q: %w", v, err)
		}
		cfg.MaxUpload = n
	}
	if v := strings.TrimSpace(getenv("CORS_ORIGINS")); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(getenv("SHOW_QR")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid SHOW_QR %q", v)
		}
		cfg.ShowQR = b
	}

	var err error
	if cfg.FilesDir, err = filepath.Abs(cfg.FilesDir); err != nil {
		return Config{}, fmt.Errorf("config: files dir: %w", err)
	}
	if cfg.TmpDir, err = filepath.Abs(cfg.TmpDir); err != nil {
		return Config{}, fmt.Errorf("config: tmp dir: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxUpload <= 0 {
		return errors.New("config: MAX_UPLOAD must be positive")
	}
	if c.MaxUpload > MaxUploadCeiling {
		return fmt.Errorf("config: MAX_UPLOAD must not exceed %d", int64(MaxUploadCeiling))
	}
	if c.FilesDir == "" || c.TmpDir == "" {
		return errors.New("config: FILES_DIR and TMP_DIR are required")
	}
	if filepath.Clean(c.FilesDir) == filepath.Clean(c.TmpDir) {
		return errors.New("config: FILES_DIR and TMP_DIR must differ")
	}
	if c.APIKey == "" && c.APIKeyBcrypt == "" {
		return errors.New("config: API_KEY must not be empty")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
