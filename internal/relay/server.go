package relay

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/api"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/metrics"
)

const LivenessMessage = "AI Assistant Server is running"

type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	AllowedOrigins []string
	WakePhrases    []string
}

type Backends struct {
	Transcriber Transcriber
	Responder   Responder
	Synthesizer Synthesizer
}

type Server struct {
	cfg     Config
	b       Backends
	wake    *Matcher
	store   *Store
	metrics *metrics.Relay
	handler http.Handler
}

// NewServer wires the routes. m may be nil.
func NewServer(cfg Config, b Backends, store *Store, m *metrics.Relay) (*Server, error) {
	if b.Transcriber == nil || b.Responder == nil || b.Synthesizer == nil {
		return nil, errors.New("relay: missing backend")
	}
	if store == nil {
		return nil, errors.New("relay: missing artifact store")
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		b:       b,
		wake:    NewMatcher(cfg.WakePhrases),
		store:   store,
		metrics: m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleLiveness)
	mux.HandleFunc("POST "+api.PathWakeWord, s.handleWakeWord)
	mux.HandleFunc("POST "+api.PathVoice, s.handleVoice)
	mux.HandleFunc("POST "+api.PathTTS, s.handleTTS)
	mux.HandleFunc("GET "+api.PathAudio+"{name}", s.handleAudio)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	s.handler = Recover(Instrument(m, SecurityHeaders(CORS(cfg.AllowedOrigins, mux))))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{Message: LivenessMessage})
}

// handleWakeWord never fails: any problem reads as "not detected".
func (s *Server) handleWakeWord(w http.ResponseWriter, r *http.Request) {
	path, err := s.saveUpload(w, r)
	if err != nil {
		log.Debug("Wake check without audio", "err", err)
		writeJSON(w, http.StatusOK, api.WakeResponse{Detected: false})
		return
	}
	defer removeUpload(path)

	text, err := s.b.Transcriber.Transcribe(r.Context(), path)
	s.recordTranscription(err)
	if err != nil {
		log.Warn("Wake word transcription failed", "err", err)
		s.recordError(api.PathWakeWord, "transcribe")
		writeJSON(w, http.StatusOK, api.WakeResponse{Detected: false})
		return
	}

	detected := s.wake.Match(text)
	if s.metrics != nil {
		s.metrics.RecordWakeCheck(detected)
	}
	log.Debug("Wake word checked", "text", text, "detected", detected)

	writeJSON(w, http.StatusOK, api.WakeResponse{Detected: detected, Transcription: text})
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	path, err := s.saveUpload(w, r)
	if err != nil {
		log.Debug("Voice request without audio", "err", err)
		writeError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer removeUpload(path)

	memory, _ := strconv.ParseBool(r.FormValue(api.FieldMemoryEnabled))

	var history []conversation.Message
	if memory {
		history = parseHistory(r.FormValue(api.FieldHistory))
	}

	text, err := s.b.Transcriber.Transcribe(r.Context(), path)
	s.recordTranscription(err)
	if err != nil {
		log.Error("Voice transcription failed", "err", err)
		s.recordError(api.PathVoice, "transcribe")
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}
	log.Info("Transcribed", "text", text, "memory", memory, "history", len(history))

	reply, err := s.b.Responder.Respond(r.Context(), history, text)
	if err != nil {
		log.Error("Chat completion failed", "err", err)
		s.recordError(api.PathVoice, "respond")
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}
	if s.metrics != nil && reply.Usage != nil {
		s.metrics.RecordTokens(reply.Model, reply.Usage.PromptTokens, reply.Usage.CompletionTokens)
	}
	log.Info("Responded", "text", reply.Text)

	writeJSON(w, http.StatusOK, api.VoiceResponse{
		Transcription: text,
		Response:      reply.Text,
		MemoryEnabled: memory,
		TokenUsage:    reply.Usage,
	})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req api.TTSRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text required")
		return
	}

	data, mimeType, err := s.b.Synthesizer.Synthesize(r.Context(), req.Text)
	if err != nil {
		log.Error("TTS failed", "err", err)
		s.recordError(api.PathTTS, "synthesize")
		writeError(w, http.StatusInternalServerError, "TTS generation failed: "+err.Error())
		return
	}

	resp := api.TTSResponse{
		Success:     true,
		AudioBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    mimeType,
	}
	if req.Persist {
		name, err := s.store.Save(data, ".mp3")
		if err != nil {
			log.Error("Failed to persist speech", "err", err)
			s.recordError(api.PathTTS, "persist")
			writeError(w, http.StatusInternalServerError, "TTS generation failed: "+err.Error())
			return
		}
		resp.AudioURL = api.PathAudio + name
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	path, err := s.store.Path(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Audio file not found")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		// expired between lookup and open
		writeError(w, http.StatusNotFound, "Audio file not found")
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audio serve failed")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "audio/mpeg")
	h.Set("Content-Disposition", "inline")
	h.Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(path), st.ModTime(), f)
}

// saveUpload copies the multipart audio field into a temp file under the
// upload dir. The caller removes it.
func (s *Server) saveUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		return "", fmt.Errorf("parse form: %w", err)
	}

	src, hdr, err := r.FormFile(api.FieldAudio)
	if err != nil {
		return "", err
	}
	defer src.Close()

	return copyUpload(s.cfg.UploadDir, src, hdr)
}

func copyUpload(dir string, src multipart.File, hdr *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	if ext == "" {
		ext = ".webm"
	}

	dst, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Cleanup failed", "path", path, "err", err)
	}
}

// parseHistory decodes conversationHistory; a bad value is logged and
// treated as empty.
func parseHistory(raw string) []conversation.Message {
	if raw == "" {
		return nil
	}
	var out []conversation.Message
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Warn("Ignoring malformed conversation history", "err", err)
		return nil
	}
	return out
}

func (s *Server) recordTranscription(err error) {
	if s.metrics != nil {
		s.metrics.RecordTranscription(s.b.Transcriber.Name(), err)
	}
}

func (s *Server) recordError(route, stage string) {
	if s.metrics != nil {
		s.metrics.RecordError(route, stage)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
