package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/api"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/audio"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
)

const maxResponseBytes = 32 << 20

type Config struct {
	BaseURL        string
	WakeTimeout    time.Duration
	ProcessTimeout time.Duration
	TTSTimeout     time.Duration
	// HTTPClient may carry a proxying transport; its own Timeout is left as is.
	HTTPClient *http.Client
}

type WakeResult struct {
	Detected      bool
	Transcription string
}

type VoiceResult struct {
	Transcription string
	Response      string
	TokenUsage    *api.TokenUsage
}

type Speech struct {
	Data     []byte
	MimeType string
}

// Client talks to the relay. Every call is one-shot: no retries, each bounded
// by its own timeout.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("empty relay base url")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = 10 * time.Second
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 60 * time.Second
	}
	if cfg.TTSTimeout <= 0 {
		cfg.TTSTimeout = 30 * time.Second
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 2 * cfg.ProcessTimeout}
	}

	return &Client{cfg: cfg, http: hc}, nil
}

// CheckWakeWord never fails: any problem is logged and reported as not detected.
func (c *Client) CheckWakeWord(ctx context.Context, clip audio.Clip) WakeResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WakeTimeout)
	defer cancel()

	body, ctype, err := multipartBody(clip, nil)
	if err != nil {
		log.Debug("Wake probe body", "err", err)
		return WakeResult{}
	}

	var out api.WakeResponse
	if err := c.do(ctx, "wake", api.PathWakeWord, ctype, body, &out); err != nil {
		log.Debug("Wake probe failed", "err", err)
		return WakeResult{}
	}

	return WakeResult{Detected: out.Detected, Transcription: out.Transcription}
}

// ProcessVoice uploads a main recording. history is attached only when non-nil.
func (c *Client) ProcessVoice(ctx context.Context, clip audio.Clip, history []conversation.Message) (VoiceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProcessTimeout)
	defer cancel()

	body, ctype, err := multipartBody(clip, history)
	if err != nil {
		return VoiceResult{}, &TransportError{Op: "voice", Err: err}
	}

	var out api.VoiceResponse
	if err := c.do(ctx, "voice", api.PathVoice, ctype, body, &out); err != nil {
		return VoiceResult{}, err
	}

	return VoiceResult{
		Transcription: out.Transcription,
		Response:      out.Response,
		TokenUsage:    out.TokenUsage,
	}, nil
}

func (c *Client) SynthesizeSpeech(ctx context.Context, text string) (Speech, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TTSTimeout)
	defer cancel()

	payload, err := json.Marshal(api.TTSRequest{Text: text})
	if err != nil {
		return Speech{}, &TransportError{Op: "tts", Err: err}
	}

	var out api.TTSResponse
	if err := c.do(ctx, "tts", api.PathTTS, "application/json", bytes.NewReader(payload), &out); err != nil {
		return Speech{}, err
	}
	if !out.Success || out.AudioBase64 == "" {
		return Speech{}, &RemoteError{Op: "tts", StatusCode: http.StatusOK, Message: "no audio in response"}
	}

	data, err := base64.StdEncoding.DecodeString(out.AudioBase64)
	if err != nil {
		return Speech{}, &ParseError{Op: "tts", Err: err}
	}

	mime := out.MimeType
	if mime == "" {
		mime = "audio/mpeg"
	}
	return Speech{Data: data, MimeType: mime}, nil
}

func (c *Client) do(ctx context.Context, op, path, ctype string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e api.ErrorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: e.Error}
		}
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(raw)))}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &ParseError{Op: op, Err: err}
	}
	return nil
}

func multipartBody(clip audio.Clip, history []conversation.Message) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := clip.Filename
	if name == "" {
		name = "recording.wav"
	}
	fw, err := w.CreateFormFile(api.FieldAudio, name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}

	if history != nil {
		encoded, err := json.Marshal(history)
		if err != nil {
			return nil, "", fmt.Errorf("encode history: %w", err)
		}
		if err := w.WriteField(api.FieldMemoryEnabled, "true"); err != nil {
			return nil, "", err
		}
		if err := w.WriteField(api.FieldHistory, string(encoded)); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
