// Package api holds the wire types shared by the desktop client and the relay.
package api

const (
	PathWakeWord = "/api/wake-word/detect"
	PathVoice    = "/api/voice/process"
	PathTTS      = "/api/tts/generate"
	PathAudio    = "/api/audio/"

	FieldAudio         = "audio"
	FieldMemoryEnabled = "memoryEnabled"
	FieldHistory       = "conversationHistory"
)

type WakeResponse struct {
	Detected      bool   `json:"detected"`
	Transcription string `json:"transcription,omitempty"`
}

type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type VoiceResponse struct {
	Transcription string      `json:"transcription"`
	Response      string      `json:"response"`
	MemoryEnabled bool        `json:"memoryEnabled"`
	TokenUsage    *TokenUsage `json:"tokenUsage"`
}

type TTSRequest struct {
	Text    string `json:"text"`
	Persist bool   `json:"persist,omitempty"`
}

type TTSResponse struct {
	Success     bool   `json:"success"`
	AudioBase64 string `json:"audioBase64"`
	MimeType    string `json:"mimeType"`
	AudioURL    string `json:"audioUrl,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Message string `json:"message"`
}
