// Package config loads the YAML configuration of the desktop daemon and of
// the relay server. A missing file yields the defaults; environment
// variables override a few secrets and addresses.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig configures cmd/assistant.
type ClientConfig struct {
	Relay   RelayConfig   `yaml:"relay"`
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	TTS     TTSConfig     `yaml:"tts"`
	Notify  NotifyConfig  `yaml:"notify"`
	Control ControlConfig `yaml:"control"`
	Logging LoggingConfig `yaml:"logging"`
}

// RelayConfig points the daemon at the relay server.
type RelayConfig struct {
	BaseURL        string `yaml:"base_url"`
	Proxy          string `yaml:"proxy"`
	WakeTimeout    int    `yaml:"wake_timeout"`    // seconds
	ProcessTimeout int    `yaml:"process_timeout"` // seconds
	TTSTimeout     int    `yaml:"tts_timeout"`     // seconds
}

type SessionConfig struct {
	ProbeInterval      int  `yaml:"probe_interval_ms"`
	WakeCapture        int  `yaml:"wake_capture_ms"`
	SettleDelay        int  `yaml:"settle_delay_ms"`
	MainCaptureCeiling int  `yaml:"main_capture_ceiling_ms"`
	RearmDelay         int  `yaml:"rearm_delay_ms"`
	HistorySize        int  `yaml:"history_size"`
	MemoryEnabled      bool `yaml:"memory_enabled"`
	TTSEnabled         bool `yaml:"tts_enabled"`
	AutoStart          bool `yaml:"auto_start"`
}

type AudioConfig struct {
	SampleRate    int      `yaml:"sample_rate"`
	FrameSize     int      `yaml:"frame_size"`
	Duck          bool     `yaml:"duck"`
	DuckFactor    float64  `yaml:"duck_factor"`
	DuckMinVolume int      `yaml:"duck_min_volume"`
	DuckFade      int      `yaml:"duck_fade_ms"`
	SelfNames     []string `yaml:"self_names"`
}

// TTSConfig selects who speaks replies: the relay ("remote"), the local
// espeak-ng engine ("espeak") or nobody ("none").
type TTSConfig struct {
	Engine   string `yaml:"engine"`
	Language string `yaml:"language"`
	Rate     int    `yaml:"rate"`
}

type NotifyConfig struct {
	Desktop bool   `yaml:"desktop"`
	Title   string `yaml:"title"`
	Cue     string `yaml:"cue"`
}

type ControlConfig struct {
	Socket   string `yaml:"socket"`
	HTTPAddr string `yaml:"http_addr"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// ServerConfig configures cmd/assistant-server.
type ServerConfig struct {
	HTTP        HTTPConfig        `yaml:"http"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	WakeWord    WakeWordConfig    `yaml:"wake_word"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type HTTPConfig struct {
	Address         string   `yaml:"address"`
	Port            int      `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownTimeout int      `yaml:"shutdown_timeout"` // seconds
}

type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Proxy        string `yaml:"proxy"`
	ChatModel    string `yaml:"chat_model"`
	SpeechModel  string `yaml:"speech_model"`
	Voice        string `yaml:"voice"`
	SystemPrompt string `yaml:"system_prompt"`
	Timeout      int    `yaml:"timeout"` // seconds
}

// TranscriberConfig picks the speech-to-text backend: "openai" (whisper-1)
// or "whisper" (local whisper.cpp model).
type TranscriberConfig struct {
	Backend   string `yaml:"backend"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`
}

type WakeWordConfig struct {
	Phrases []string `yaml:"phrases"`
}

type StorageConfig struct {
	UploadDir   string `yaml:"upload_dir"`
	Retention   int    `yaml:"retention"` // seconds
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

const DefaultSystemPrompt = "You are a personal assistant who speaks Turkish. Keep answers short and friendly, no longer than two or three sentences."

func DefaultClient() *ClientConfig {
	return &ClientConfig{
		Relay: RelayConfig{
			BaseURL:        "http://localhost:3001",
			WakeTimeout:    10,
			ProcessTimeout: 60,
			TTSTimeout:     30,
		},
		Session: SessionConfig{
			ProbeInterval:      3000,
			WakeCapture:        2000,
			SettleDelay:        1000,
			MainCaptureCeiling: 10000,
			RearmDelay:         2000,
			HistorySize:        10,
			TTSEnabled:         true,
			AutoStart:          true,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			FrameSize:     320,
			DuckFactor:    0.3,
			DuckMinVolume: 10,
			DuckFade:      250,
			SelfNames:     []string{"assistant"},
		},
		TTS: TTSConfig{
			Engine:   "remote",
			Language: "tr",
		},
		Notify: NotifyConfig{
			Desktop: true,
			Title:   "Assistant",
		},
		Control: ControlConfig{
			Socket:   "/tmp/assistant.sock",
			HTTPAddr: "127.0.0.1:3002",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func DefaultServer() *ServerConfig {
	return &ServerConfig{
		HTTP: HTTPConfig{
			Address:         "0.0.0.0",
			Port:            3001,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10,
		},
		OpenAI: OpenAIConfig{
			ChatModel:    "gpt-4",
			SpeechModel:  "tts-1",
			Voice:        "alloy",
			SystemPrompt: DefaultSystemPrompt,
			Timeout:      60,
		},
		Transcriber: TranscriberConfig{
			Backend:  "openai",
			Language: "auto",
		},
		WakeWord: WakeWordConfig{
			Phrases: []string{"hey asistan", "merhaba asistan", "asistan", "hey assistant"},
		},
		Storage: StorageConfig{
			UploadDir:   "uploads",
			Retention:   30,
			MaxUploadMB: 25,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadClient reads the daemon configuration. An empty or missing path
// yields the defaults.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClient()
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("ASSISTANT_RELAY_URL"); v != "" {
		cfg.Relay.BaseURL = v
	}
	if v := os.Getenv("ASSISTANT_PROXY"); v != "" {
		cfg.Relay.Proxy = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadServer reads the relay configuration. OPENAI_API_KEY and PORT from the
// environment win over the file.
func LoadServer(path string) (*ServerConfig, error) {
	cfg := DefaultServer()
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PORT %q: %w", v, err)
		}
		cfg.HTTP.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *ClientConfig) Validate() error {
	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.OpenAI.Validate(); err != nil {
		return fmt.Errorf("openai config: %w", err)
	}
	if err := c.Transcriber.Validate(); err != nil {
		return fmt.Errorf("transcriber config: %w", err)
	}
	if err := c.WakeWord.Validate(); err != nil {
		return fmt.Errorf("wake_word config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (r *RelayConfig) Validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}
	if r.WakeTimeout < 1 || r.ProcessTimeout < 1 || r.TTSTimeout < 1 {
		return fmt.Errorf("timeouts must be at least 1 second, got wake=%d process=%d tts=%d",
			r.WakeTimeout, r.ProcessTimeout, r.TTSTimeout)
	}
	return nil
}

func (s *SessionConfig) Validate() error {
	for name, v := range map[string]int{
		"probe_interval_ms":       s.ProbeInterval,
		"wake_capture_ms":         s.WakeCapture,
		"settle_delay_ms":         s.SettleDelay,
		"main_capture_ceiling_ms": s.MainCaptureCeiling,
		"rearm_delay_ms":          s.RearmDelay,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if s.WakeCapture > s.ProbeInterval {
		return fmt.Errorf("wake_capture_ms (%d) must not exceed probe_interval_ms (%d)", s.WakeCapture, s.ProbeInterval)
	}
	if s.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", s.HistorySize)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", a.SampleRate)
	}
	if a.FrameSize < 1 {
		return fmt.Errorf("frame_size must be positive, got %d", a.FrameSize)
	}
	if a.DuckFactor < 0 || a.DuckFactor > 1 {
		return fmt.Errorf("duck_factor must be between 0 and 1, got %f", a.DuckFactor)
	}
	if a.DuckMinVolume < 0 || a.DuckMinVolume > 100 {
		return fmt.Errorf("duck_min_volume must be between 0 and 100, got %d", a.DuckMinVolume)
	}
	return nil
}

func (t *TTSConfig) Validate() error {
	switch t.Engine {
	case "remote", "espeak", "none":
		return nil
	}
	return fmt.Errorf("engine must be one of [remote, espeak, none], got '%s'", t.Engine)
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
}

func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}
	return nil
}

func (o *OpenAIConfig) Validate() error {
	if o.ChatModel == "" {
		return fmt.Errorf("chat_model cannot be empty")
	}
	if o.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", o.Timeout)
	}
	return nil
}

func (t *TranscriberConfig) Validate() error {
	switch t.Backend {
	case "openai":
		return nil
	case "whisper":
		if t.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for the whisper backend")
		}
		return nil
	}
	return fmt.Errorf("backend must be 'openai' or 'whisper', got '%s'", t.Backend)
}

func (w *WakeWordConfig) Validate() error {
	if len(w.Phrases) == 0 {
		return fmt.Errorf("phrases cannot be empty")
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	if s.UploadDir == "" {
		return fmt.Errorf("upload_dir cannot be empty")
	}
	if s.Retention < 1 {
		return fmt.Errorf("retention must be at least 1 second, got %d", s.Retention)
	}
	if s.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", s.MaxUploadMB)
	}
	return nil
}

func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

func (h *HTTPConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

func (r *RelayConfig) GetWakeTimeout() time.Duration {
	return time.Duration(r.WakeTimeout) * time.Second
}

func (r *RelayConfig) GetProcessTimeout() time.Duration {
	return time.Duration(r.ProcessTimeout) * time.Second
}

func (r *RelayConfig) GetTTSTimeout() time.Duration {
	return time.Duration(r.TTSTimeout) * time.Second
}

func (s *SessionConfig) GetProbeInterval() time.Duration {
	return time.Duration(s.ProbeInterval) * time.Millisecond
}

func (s *SessionConfig) GetWakeCapture() time.Duration {
	return time.Duration(s.WakeCapture) * time.Millisecond
}

func (s *SessionConfig) GetSettleDelay() time.Duration {
	return time.Duration(s.SettleDelay) * time.Millisecond
}

func (s *SessionConfig) GetMainCaptureCeiling() time.Duration {
	return time.Duration(s.MainCaptureCeiling) * time.Millisecond
}

func (s *SessionConfig) GetRearmDelay() time.Duration {
	return time.Duration(s.RearmDelay) * time.Millisecond
}

func (a *AudioConfig) GetDuckFade() time.Duration {
	return time.Duration(a.DuckFade) * time.Millisecond
}

func (o *OpenAIConfig) GetTimeout() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

func (s *StorageConfig) GetRetention() time.Duration {
	return time.Duration(s.Retention) * time.Second
}

func (s *StorageConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}
