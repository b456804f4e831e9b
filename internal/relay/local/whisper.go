// Package local transcribes uploads in-process with whisper.cpp.
package local

import (
	"context"
	"fmt"
	log "log/slog"

	"github.com/furkannumanoglu/ai-personal-assistant/pkg/audioconv"
	"github.com/furkannumanoglu/ai-personal-assistant/pkg/stt"
)

// maxLocalSamples caps local transcription at two minutes of 16 kHz audio.
const maxLocalSamples = 2 * 60 * audioconv.TargetRate

type Transcriber struct {
	model *stt.Transcriber
	opt   stt.Options
}

func NewTranscriber(modelPath, language string, threads int) (*Transcriber, error) {
	m, err := stt.NewTranscriber(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper model %s: %w", modelPath, err)
	}
	return &Transcriber{
		model: m,
		opt:   stt.Options{Language: language, Threads: threads},
	}, nil
}

func (t *Transcriber) Name() string { return "whisper" }

func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	pcm, err := audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{MaxSamples: maxLocalSamples})
	if err != nil {
		return "", fmt.Errorf("convert upload: %w", err)
	}

	res, err := t.model.TranscribePCM(ctx, pcm, t.opt)
	if err != nil {
		return "", err
	}
	log.Debug("Transcribed locally", "samples", len(pcm), "lang", res.Language, "segments", len(res.Segments))
	return res.Text, nil
}

func (t *Transcriber) Close() error {
	return t.model.Close()
}
