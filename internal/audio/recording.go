package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type Mode string

const (
	ModeWakeWord Mode = "wakeword"
	ModeMain     Mode = "main"
)

// Clip is a finished, encoded capture ready for upload.
type Clip struct {
	Data     []byte
	MimeType string
	Filename string
	Duration time.Duration
}

// Recording holds the frames of one capture attempt. Chunks are PCM16LE,
// mono, in capture order.
type Recording struct {
	Mode        Mode
	StartedAt   time.Time
	MaxDuration time.Duration
	SampleRate  int
	Chunks      [][]byte
}

func NewRecording(mode Mode, sampleRate int, maxDuration time.Duration) *Recording {
	return &Recording{
		Mode:        mode,
		StartedAt:   time.Now(),
		MaxDuration: maxDuration,
		SampleRate:  sampleRate,
	}
}

func (r *Recording) Append(frame []int16) {
	if len(frame) == 0 {
		return
	}
	b := make([]byte, len(frame)*2)
	for i, s := range frame {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	r.Chunks = append(r.Chunks, b)
}

func (r *Recording) Samples() int {
	n := 0
	for _, c := range r.Chunks {
		n += len(c) / 2
	}
	return n
}

func (r *Recording) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(r.Samples()) * time.Second / time.Duration(r.SampleRate)
}

// Encode wraps the captured frames into a 16-bit mono WAV clip.
func (r *Recording) Encode() (Clip, error) {
	if r.Samples() == 0 {
		return Clip{}, ErrNoAudio
	}

	data := make([]int, 0, r.Samples())
	for _, c := range r.Chunks {
		for i := 0; i+1 < len(c); i += 2 {
			data = append(data, int(int16(binary.LittleEndian.Uint16(c[i:]))))
		}
	}

	var out memFile
	enc := wav.NewEncoder(&out, r.SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  r.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return Clip{}, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return Clip{}, fmt.Errorf("finish wav: %w", err)
	}

	return Clip{
		Data:     out.buf,
		MimeType: "audio/wav",
		Filename: string(r.Mode) + ".wav",
		Duration: r.Duration(),
	}, nil
}

// memFile is the io.WriteSeeker the wav encoder needs to patch its header.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(m.pos)
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, errors.New("invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(next)
	return next, nil
}
