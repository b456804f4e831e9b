package audio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

var (
	ErrPermissionDenied = errors.New("microphone access denied")
	ErrNoAudio          = errors.New("no audio recorded")
	ErrDeviceBusy       = errors.New("microphone already in use")
)

const (
	DefaultSampleRate = 16000
	DefaultFrameSize  = 320 // 20ms
)

type inputStream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

type Recorder struct {
	SampleRate int
	FrameSize  int

	mu   sync.Mutex
	open func(buf []int16, sampleRate int) (inputStream, error)
}

func NewRecorder() *Recorder {
	return &Recorder{
		SampleRate: DefaultSampleRate,
		FrameSize:  DefaultFrameSize,
		open:       openDefaultInput,
	}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

func openDefaultInput(buf []int16, sampleRate int) (inputStream, error) {
	return portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
}

// Capture records from the default input until maxDur elapses or stop is
// closed, then returns the encoded clip. Cancelling ctx abandons the capture.
// The input stream is stopped and closed on every return path.
func (r *Recorder) Capture(ctx context.Context, mode Mode, maxDur time.Duration, stop <-chan struct{}) (Clip, error) {
	if !r.mu.TryLock() {
		return Clip{}, ErrDeviceBusy
	}
	defer r.mu.Unlock()

	if maxDur <= 0 {
		maxDur = 10 * time.Second
	}

	buf := make([]int16, r.FrameSize)

	stream, err := r.open(buf, r.SampleRate)
	if err != nil {
		return Clip{}, openError(err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return Clip{}, openError(err)
	}
	defer stream.Stop()

	rec := NewRecording(mode, r.SampleRate, maxDur)

	ceiling := time.NewTimer(maxDur)
	defer ceiling.Stop()

	log.Debug("Capture started", "mode", mode, "max", maxDur)

loop:
	for {
		select {
		case <-ctx.Done():
			return Clip{}, ctx.Err()
		case <-stop:
			break loop
		case <-ceiling.C:
			break loop
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				continue
			}
			return Clip{}, fmt.Errorf("read input: %w", err)
		}

		rec.Append(buf)
	}

	log.Debug("Capture finished", "mode", mode, "dur", rec.Duration())

	return rec.Encode()
}

func openError(err error) error {
	var pe portaudio.Error
	if errors.As(err, &pe) {
		switch pe {
		case portaudio.DeviceUnavailable, portaudio.InvalidDevice, portaudio.NoDefaultInputDevice:
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("open input: %w", err)
}
