package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
	if cfg.Scanner.Threads < 1 {
		t.Fatalf("default threads = %d, want >= 1", cfg.Scanner.Threads)
	}
	if cfg.Scanner.Token != "cloudflare" {
		t.Fatalf("default token = %q, want cloudflare", cfg.Scanner.Token)
	}
}

func TestParseSettingsAppliesDefaults(t *testing.T) {
	cfg, err := ParseSettings([]byte(`{"scanner": {"threads": 4}}`))
	if err != nil {
		t.Fatalf("ParseSettings returned error: %v", err)
	}

	def := DefaultConfig()
	if cfg.Scanner.Threads != 4 {
		t.Fatalf("threads = %d, want 4", cfg.Scanner.Threads)
	}
	if cfg.Scanner.Token != def.Scanner.Token {
		t.Fatalf("token = %q, want %q", cfg.Scanner.Token, def.Scanner.Token)
	}
	if cfg.Source.URL != def.Source.URL {
		t.Fatalf("source url = %q, want %q", cfg.Source.URL, def.Source.URL)
	}
	if cfg.Queue.Backend != QueueBackendMemory {
		t.Fatalf("queue backend = %q, want %q", cfg.Queue.Backend, QueueBackendMemory)
	}
	if cfg.Scanner.PacingDelay == nil || *cfg.Scanner.PacingDelay != *def.Scanner.PacingDelay {
		t.Fatalf("pacing delay = %v, want default %d", cfg.Scanner.PacingDelay, *def.Scanner.PacingDelay)
	}
	if got := cfg.PacingDelay(); got != 500*time.Millisecond {
		t.Fatalf("PacingDelay() = %s, want 500ms", got)
	}
}

func TestParseSettingsKeepsExplicitZeroPacing(t *testing.T) {
	cfg, err := ParseSettings([]byte(`{"scanner": {"threads": 4, "pacing_delay": 0}}`))
	if err != nil {
		t.Fatalf("ParseSettings returned error: %v", err)
	}
	if got := cfg.PacingDelay(); got != 0 {
		t.Fatalf("PacingDelay() = %s, want 0s", got)
	}
}

func TestParseSettingsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"malformed json", `{"scanner": `, ""},
		{"zero threads", `{"scanner": {"threads": 0}}`, "scanner.threads"},
		{"negative threads", `{"scanner": {"threads": -3}}`, "scanner.threads"},
		{"missing threads", `{}`, "scanner.threads"},
		{"bad source url", `{"scanner": {"threads": 1}, "source": {"url": "ftp://example.com"}}`, "source.url"},
		{"bad queue backend", `{"scanner": {"threads": 1}, "queue": {"backend": "kafka"}}`, "queue.backend"},
		{"bad probe proxy", `{"scanner": {"threads": 1, "probe_proxy": "http://proxy:8080"}}`, "scanner.probe_proxy"},
		{"negative rate limit", `{"scanner": {"threads": 1, "rate_limit": -1}}`, "scanner.rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSettings([]byte(tt.input))
			if err == nil {
				t.Fatal("ParseSettings returned nil error")
			}

			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error %v is not a *ConfigurationError", err)
			}
			if cfgErr.Field != tt.field {
				t.Fatalf("error field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}

func TestReadSettingsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := ReadSettings(path)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("ReadSettings error = %v, want *ConfigurationError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadSettings error should wrap os.ErrNotExist, got %v", err)
	}
}

func TestWriteDefaultSettingsThenRead(t *testing.T) {
	orig := GetConfig()
	t.Cleanup(func() { SetConfig(orig) })

	path := filepath.Join(t.TempDir(), "data", "settings.json")
	if err := WriteDefaultSettings(path); err != nil {
		t.Fatalf("WriteDefaultSettings returned error: %v", err)
	}

	if err := WriteDefaultSettings(path); err == nil {
		t.Fatal("expected second WriteDefaultSettings to refuse overwriting")
	}

	cfg, err := ReadSettings(path)
	if err != nil {
		t.Fatalf("ReadSettings returned error: %v", err)
	}
	if got := GetConfig(); got.Scanner.Threads != cfg.Scanner.Threads {
		t.Fatalf("GetConfig threads = %d, want %d", got.Scanner.Threads, cfg.Scanner.Threads)
	}
}
