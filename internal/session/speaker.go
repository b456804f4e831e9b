package session

import (
	"context"
	"fmt"

	"github.com/furkannumanoglu/ai-personal-assistant/internal/transport"
)

type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string) (transport.Speech, error)
}

type Player interface {
	Play(ctx context.Context, data []byte, mimeType string) error
}

// RemoteSpeaker asks the relay for speech and plays it locally.
type RemoteSpeaker struct {
	Synth  Synthesizer
	Player Player
}

func (s RemoteSpeaker) Speak(ctx context.Context, text string) error {
	speech, err := s.Synth.SynthesizeSpeech(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if err := s.Player.Play(ctx, speech.Data, speech.MimeType); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}
