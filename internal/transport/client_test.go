package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/api"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/audio"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
)

var testClip = audio.Clip{Data: []byte("RIFFfake"), MimeType: "audio/wav", Filename: "main.wav"}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:        srv.URL + "/",
		WakeTimeout:    time.Second,
		ProcessTimeout: time.Second,
		TTSTimeout:     time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestCheckWakeWordDetected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.PathWakeWord {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile(api.FieldAudio)
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			data, _ := io.ReadAll(f)
			if string(data) != "RIFFfake" || hdr.Filename != "main.wav" {
				t.Errorf("upload = %q (%s)", data, hdr.Filename)
			}
		}
		writeJSON(w, http.StatusOK, api.WakeResponse{Detected: true, Transcription: "hey asistan"})
	})

	got := c.CheckWakeWord(context.Background(), testClip)
	if !got.Detected || got.Transcription != "hey asistan" {
		t.Fatalf("result = %+v", got)
	}
}

func TestCheckWakeWordFailsSoft(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "boom"})
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h)
			if got := c.CheckWakeWord(context.Background(), testClip); got.Detected {
				t.Fatalf("detected = true on failure")
			}
		})
	}

	c, _ := NewClient(Config{BaseURL: "http://127.0.0.1:1", WakeTimeout: 200 * time.Millisecond})
	if got := c.CheckWakeWord(context.Background(), testClip); got.Detected {
		t.Fatalf("detected = true on connection failure")
	}
}

func TestProcessVoiceWithoutHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		if _, ok := r.MultipartForm.Value[api.FieldHistory]; ok {
			t.Errorf("history attached without memory")
		}
		if _, ok := r.MultipartForm.Value[api.FieldMemoryEnabled]; ok {
			t.Errorf("memoryEnabled attached without memory")
		}
		writeJSON(w, http.StatusOK, api.VoiceResponse{Transcription: "what time is it", Response: "noon"})
	})

	got, err := c.ProcessVoice(context.Background(), testClip, nil)
	if err != nil {
		t.Fatalf("ProcessVoice: %v", err)
	}
	if got.Transcription != "what time is it" || got.Response != "noon" {
		t.Fatalf("result = %+v", got)
	}
}

func TestProcessVoiceWithHistory(t *testing.T) {
	history := []conversation.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue(api.FieldMemoryEnabled) != "true" {
			t.Errorf("memoryEnabled = %q", r.FormValue(api.FieldMemoryEnabled))
		}
		var got []conversation.Message
		if err := json.Unmarshal([]byte(r.FormValue(api.FieldHistory)), &got); err != nil {
			t.Errorf("history: %v", err)
		}
		if len(got) != 2 || got[0] != history[0] || got[1] != history[1] {
			t.Errorf("history = %+v", got)
		}
		writeJSON(w, http.StatusOK, api.VoiceResponse{
			Transcription: "again",
			Response:      "sure",
			TokenUsage:    &api.TokenUsage{TotalTokens: 42},
		})
	})

	got, err := c.ProcessVoice(context.Background(), testClip, history)
	if err != nil {
		t.Fatalf("ProcessVoice: %v", err)
	}
	if got.TokenUsage == nil || got.TokenUsage.TotalTokens != 42 {
		t.Fatalf("token usage = %+v", got.TokenUsage)
	}
}

func TestProcessVoiceErrors(t *testing.T) {
	t.Run("remote", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Error: "whisper down"})
		})
		_, err := c.ProcessVoice(context.Background(), testClip, nil)
		var re *RemoteError
		if !errors.As(err, &re) {
			t.Fatalf("err = %v, want RemoteError", err)
		}
		if re.Message != "whisper down" || re.StatusCode != 500 {
			t.Fatalf("remote error = %+v", re)
		}
	})

	t.Run("status without body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		})
		_, err := c.ProcessVoice(context.Background(), testClip, nil)
		var te *TransportError
		if !errors.As(err, &te) || te.StatusCode != http.StatusBadGateway {
			t.Fatalf("err = %v, want TransportError 502", err)
		}
	})

	t.Run("parse", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		})
		_, err := c.ProcessVoice(context.Background(), testClip, nil)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("err = %v, want ParseError", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)
		c.cfg.ProcessTimeout = 50 * time.Millisecond

		start := time.Now()
		_, err := c.ProcessVoice(context.Background(), testClip, nil)
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want TransportError", err)
		}
		if time.Since(start) > 2*time.Second {
			t.Fatalf("timeout not enforced")
		}
	})
}

func TestSynthesizeSpeech(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req api.TTSRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text != "merhaba" {
			t.Errorf("request = %+v, %v", req, err)
		}
		writeJSON(w, http.StatusOK, api.TTSResponse{
			Success:     true,
			AudioBase64: base64.StdEncoding.EncodeToString([]byte("ID3mp3")),
			MimeType:    "audio/mpeg",
		})
	})

	sp, err := c.SynthesizeSpeech(context.Background(), "merhaba")
	if err != nil {
		t.Fatalf("SynthesizeSpeech: %v", err)
	}
	if string(sp.Data) != "ID3mp3" || sp.MimeType != "audio/mpeg" {
		t.Fatalf("speech = %q %s", sp.Data, sp.MimeType)
	}
}

func TestSynthesizeSpeechUnsuccessful(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.TTSResponse{Success: false})
	})

	_, err := c.SynthesizeSpeech(context.Background(), "x")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
}
