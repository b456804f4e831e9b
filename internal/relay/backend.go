// Package relay is the HTTP inference boundary the desktop daemon talks to:
// wake-word checks, voice turns and speech synthesis.
package relay

import (
	"context"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/api"
	"github.com/furkannumanoglu/ai-personal-assistant/internal/conversation"
)

// Transcriber turns an uploaded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Name() string
}

type Reply struct {
	Text  string
	Model string
	Usage *api.TokenUsage
}

// Responder produces the assistant reply for a user turn. history is nil
// when memory is off.
type Responder interface {
	Respond(ctx context.Context, history []conversation.Message, text string) (Reply, error)
}

// Synthesizer renders text to encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (data []byte, mimeType string, err error)
}
