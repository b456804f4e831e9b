package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Player plays encoded speech through the default output device. The speaker
// is initialised lazily at the rate of the first clip; later clips are
// resampled to it.
type Player struct {
	mu   sync.Mutex
	rate beep.SampleRate
	out  output
}

func NewPlayer() *Player { return &Player{out: speakerOutput{}} }

// output is the shared mixer clips are played on.
type output interface {
	Play(s ...beep.Streamer)
	Lock()
	Unlock()
}

type speakerOutput struct{}

func (speakerOutput) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerOutput) Lock()                   { speaker.Lock() }
func (speakerOutput) Unlock()                 { speaker.Unlock() }

// Play blocks until the clip finished or ctx is cancelled.
func (p *Player) Play(ctx context.Context, data []byte, mimeType string) error {
	streamer, format, err := decode(data, mimeType)
	if err != nil {
		return err
	}
	defer streamer.Close()

	rate, err := p.ensureSpeaker(format.SampleRate)
	if err != nil {
		return err
	}

	var s beep.Streamer = streamer
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, streamer)
	}

	return playStream(ctx, p.out, s)
}

// playStream blocks until s drained or ctx is cancelled. Cancelling stops
// this clip only; other clips on out keep playing.
func playStream(ctx context.Context, out output, s beep.Streamer) error {
	ctrl := &beep.Ctrl{Streamer: s}
	done := make(chan struct{})
	out.Play(beep.Seq(ctrl, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		out.Lock()
		ctrl.Streamer = nil
		out.Unlock()
		return ctx.Err()
	}
}

// PlayFile plays a short sound from disk, e.g. the wake cue.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	mime := "audio/mpeg"
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		mime = "audio/wav"
	}
	return p.Play(ctx, data, mime)
}

func (p *Player) ensureSpeaker(sr beep.SampleRate) (beep.SampleRate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate != 0 {
		return p.rate, nil
	}
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		return 0, fmt.Errorf("init speaker: %w", err)
	}
	p.rate = sr
	return sr, nil
}

func decode(data []byte, mimeType string) (beep.StreamSeekCloser, beep.Format, error) {
	if len(data) == 0 {
		return nil, beep.Format{}, ErrNoAudio
	}

	var (
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	)
	if isWAV(data, mimeType) {
		s, f, err = wav.Decode(bytes.NewReader(data))
	} else {
		s, f, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", mimeType, err)
	}
	return s, f, nil
}

func isWAV(data []byte, mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return true
	case "audio/mpeg", "audio/mp3":
		return false
	}
	return len(data) >= 4 && string(data[:4]) == "RIFF"
}
