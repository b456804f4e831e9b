package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadClientMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadClient(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}

	if got := cfg.Session.GetProbeInterval(); got != 3*time.Second {
		t.Errorf("probe interval = %v, want 3s", got)
	}
	if got := cfg.Session.GetSettleDelay(); got != time.Second {
		t.Errorf("settle delay = %v, want 1s", got)
	}
	if got := cfg.Session.GetMainCaptureCeiling(); got != 10*time.Second {
		t.Errorf("main ceiling = %v, want 10s", got)
	}
	if got := cfg.Relay.GetProcessTimeout(); got != time.Minute {
		t.Errorf("process timeout = %v, want 1m", got)
	}
	if cfg.Session.HistorySize != 10 {
		t.Errorf("history size = %d, want 10", cfg.Session.HistorySize)
	}
}

func TestLoadClientFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assistant.yaml")
	data := `
relay:
  base_url: http://relay.local:9000
  process_timeout: 90
session:
  memory_enabled: true
  rearm_delay_ms: 500
tts:
  engine: espeak
  language: en
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}

	if cfg.Relay.BaseURL != "http://relay.local:9000" {
		t.Errorf("base url = %q", cfg.Relay.BaseURL)
	}
	if cfg.Relay.GetProcessTimeout() != 90*time.Second {
		t.Errorf("process timeout = %v", cfg.Relay.GetProcessTimeout())
	}
	if cfg.Relay.GetWakeTimeout() != 10*time.Second {
		t.Errorf("wake timeout lost its default: %v", cfg.Relay.GetWakeTimeout())
	}
	if !cfg.Session.MemoryEnabled || cfg.Session.GetRearmDelay() != 500*time.Millisecond {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.TTS.Engine != "espeak" || cfg.TTS.Language != "en" {
		t.Errorf("tts = %+v", cfg.TTS)
	}
}

func TestLoadClientEnvOverride(t *testing.T) {
	t.Setenv("ASSISTANT_RELAY_URL", "http://10.0.0.2:3001")

	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Relay.BaseURL != "http://10.0.0.2:3001" {
		t.Fatalf("base url = %q", cfg.Relay.BaseURL)
	}
}

func TestLoadServerEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "4000")

	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.OpenAI.APIKey)
	}
	if cfg.HTTP.Addr() != "0.0.0.0:4000" {
		t.Errorf("addr = %q", cfg.HTTP.Addr())
	}
	if cfg.Storage.GetRetention() != 30*time.Second {
		t.Errorf("retention = %v", cfg.Storage.GetRetention())
	}
	if len(cfg.WakeWord.Phrases) != 4 {
		t.Errorf("phrases = %v", cfg.WakeWord.Phrases)
	}
}

func TestLoadServerBadPort(t *testing.T) {
	t.Setenv("PORT", "http")
	if _, err := LoadServer(""); err == nil {
		t.Fatalf("expected error for non-numeric PORT")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("relay: [unclosed"), 0o644)

	_, err := LoadClient(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestClientValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ClientConfig)
		errorMsg string
	}{
		{"valid defaults", func(*ClientConfig) {}, ""},
		{"empty relay", func(c *ClientConfig) { c.Relay.BaseURL = "" }, "base_url"},
		{"zero timeout", func(c *ClientConfig) { c.Relay.TTSTimeout = 0 }, "timeouts"},
		{"negative settle", func(c *ClientConfig) { c.Session.SettleDelay = -1 }, "settle_delay_ms"},
		{"capture longer than interval", func(c *ClientConfig) { c.Session.WakeCapture = 5000 }, "wake_capture_ms"},
		{"no history", func(c *ClientConfig) { c.Session.HistorySize = 0 }, "history_size"},
		{"duck factor", func(c *ClientConfig) { c.Audio.DuckFactor = 2 }, "duck_factor"},
		{"unknown engine", func(c *ClientConfig) { c.TTS.Engine = "sapi" }, "engine"},
		{"bad level", func(c *ClientConfig) { c.Logging.Level = "trace" }, "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClient()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Fatalf("err = %v, want containing %q", err, tt.errorMsg)
			}
		})
	}
}

func TestServerValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ServerConfig)
		errorMsg string
	}{
		{"valid defaults", func(*ServerConfig) {}, ""},
		{"port", func(c *ServerConfig) { c.HTTP.Port = 70000 }, "port"},
		{"whisper without model", func(c *ServerConfig) { c.Transcriber.Backend = "whisper" }, "model_path"},
		{"unknown backend", func(c *ServerConfig) { c.Transcriber.Backend = "vosk" }, "backend"},
		{"no phrases", func(c *ServerConfig) { c.WakeWord.Phrases = nil }, "phrases"},
		{"retention", func(c *ServerConfig) { c.Storage.Retention = 0 }, "retention"},
		{"model", func(c *ServerConfig) { c.OpenAI.ChatModel = "" }, "chat_model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServer()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Fatalf("err = %v, want containing %q", err, tt.errorMsg)
			}
		})
	}
}
