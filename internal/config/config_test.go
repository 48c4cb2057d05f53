package config

import (
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Port)
	}
	if cfg.MaxUpload != 50*1024*1024 {
		t.Errorf("max upload = %d", cfg.MaxUpload)
	}
	if cfg.APIKey != "dev-key" || !cfg.UsingDefaultKey() {
		t.Errorf("expected default key, got %q", cfg.APIKey)
	}
	if !filepath.IsAbs(cfg.FilesDir) || filepath.Base(cfg.FilesDir) != "files" {
		t.Errorf("files dir = %q", cfg.FilesDir)
	}
	if !filepath.IsAbs(cfg.TmpDir) || filepath.Base(cfg.TmpDir) != "tmp" {
		t.Errorf("tmp dir = %q", cfg.TmpDir)
	}
	if cfg.Addr() != "0.0.0.0:3000" {
		t.Errorf("addr = %q", cfg.Addr())
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("cors = %v", cfg.CORSOrigins)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := FromEnv(envOf(map[string]string{
		"PORT":         "8088",
		"FILES_DIR":    filepath.Join(dir, "f"),
		"TMP_DIR":      filepath.Join(dir, "t"),
		"API_KEY":      "s3cret",
		"MAX_UPLOAD":   "1024",
		"CORS_ORIGINS": "http://a.lan, http://b.lan ,",
		"SHOW_QR":      "false",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != 8088 || cfg.APIKey != "s3cret" || cfg.MaxUpload != 1024 || cfg.ShowQR {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.UsingDefaultKey() {
		t.Errorf("custom key reported as default")
	}
	if cfg.FilesDir != filepath.Join(dir, "f") {
		t.Errorf("files dir = %q", cfg.FilesDir)
	}
	if strings.Join(cfg.CORSOrigins, "|") != "http://a.lan|http://b.lan" {
		t.Errorf("cors = %v", cfg.CORSOrigins)
	}
}

func TestMaxUploadCeiling(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{"MAX_UPLOAD": strconv.FormatInt(MaxUploadCeiling, 10)}))
	if err != nil {
		t.Fatalf("FromEnv at ceiling: %v", err)
	}
	if cfg.MaxUpload != MaxUploadCeiling {
		t.Fatalf("max upload = %d", cfg.MaxUpload)
	}
	cfg.MaxUpload++
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error above ceiling")
	}
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port not a number", map[string]string{"PORT": "abc"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"max upload not a number", map[string]string{"MAX_UPLOAD": "big"}},
		{"max upload zero", map[string]string{"MAX_UPLOAD": "0"}},
		{"max upload max int64", map[string]string{"MAX_UPLOAD": "9223372036854775807"}},
		{"max upload above ceiling", map[string]string{"MAX_UPLOAD": "9223372036854775000"}},
		{"max upload overflows", map[string]string{"MAX_UPLOAD": "9223372036854775808"}},
		{"bad bool", map[string]string{"SHOW_QR": "maybe"}},
		{"same dirs", map[string]string{"FILES_DIR": "x", "TMP_DIR": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromEnv(envOf(tt.env)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
