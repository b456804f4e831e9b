// Package audioconv turns uploaded audio (wav, mp3, ogg vorbis, ogg opus)
// into the 16 kHz mono float PCM that whisper.cpp expects.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const TargetRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	MaxSamples int
}

// raw is decoded interleaved audio before normalisation.
type raw struct {
	samples  []float32
	rate     int
	channels int
}

type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOgg     Format = "ogg"
	FormatUnknown Format = ""
)

func ConvertFileToPCM16k(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(ctx, f, formatFromExt(path), opt)
}

// Decode reads r fully and returns 16 kHz mono samples in [-1, 1]. When
// hint is empty the format is sniffed from the first bytes.
func Decode(ctx context.Context, r io.ReadSeeker, hint Format, opt Options) ([]float32, error) {
	format := hint
	if format == FormatUnknown {
		var err error
		if format, err = sniff(r); err != nil {
			return nil, err
		}
	}

	var (
		in  raw
		err error
	)
	switch format {
	case FormatWAV:
		in, err = decodeWAV(r)
	case FormatMP3:
		in, err = decodeMP3(r)
	case FormatOgg:
		in, err = decodeOgg(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return normalize(in, opt), nil
}

func formatFromExt(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".ogg", ".oga", ".opus":
		return FormatOgg
	}
	return FormatUnknown
}

func sniff(r io.ReadSeeker) (Format, error) {
	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return FormatUnknown, err
	}

	switch {
	case string(magic) == "RIFF":
		return FormatWAV, nil
	case string(magic) == "OggS":
		return FormatOgg, nil
	case len(magic) >= 3 && string(magic[:3]) == "ID3",
		len(magic) >= 2 && magic[0] == 0xFF && magic[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	return FormatUnknown, fmt.Errorf("%w: magic %q", ErrUnsupported, magic)
}

func decodeWAV(r io.ReadSeeker) (raw, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return raw{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return raw{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return raw{}, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	out := raw{samples: intsToFloat(pb.Data, depth), rate: 44100, channels: 1}
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			out.channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			out.rate = pb.Format.SampleRate
		}
	}
	return out, nil
}

func decodeMP3(r io.Reader) (raw, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return raw{}, err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return raw{}, err
	}
	ints := make([]int16, buf.Len()/2)
	if err := binary.Read(&buf, binary.LittleEndian, &ints); err != nil {
		return raw{}, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// go-mp3 always yields 16-bit stereo.
	return raw{samples: int16sToFloat(ints), rate: rate, channels: 2}, nil
}

// decodeOgg tries Vorbis first and falls back to Opus.
func decodeOgg(r io.ReadSeeker) (raw, error) {
	pcm, format, verr := oggvorbis.ReadAll(r)
	if verr == nil && format != nil && format.Channels > 0 && format.SampleRate > 0 {
		return raw{samples: pcm, rate: format.SampleRate, channels: format.Channels}, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return raw{}, err
	}
	out, oerr := decodeOpus(r)
	if oerr != nil {
		return raw{}, fmt.Errorf("neither vorbis (%v) nor opus (%w)", verr, oerr)
	}
	return out, nil
}

func decodeOpus(r io.ReadSeeker) (raw, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return raw{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// opus always decodes at 48 kHz; read about half a second per call
	var (
		out []float32
		buf = make([]int16, 24000*ch)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16sToFloat(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw{}, err
		}
	}
	if len(out) == 0 {
		return raw{}, errors.New("empty opus stream")
	}
	return raw{samples: out, rate: 48000, channels: ch}, nil
}

func normalize(in raw, opt Options) []float32 {
	x := downmix(in.samples, in.channels)
	x = resampleLinear(x, in.rate, TargetRate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}

func intsToFloat(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(math.Max(-1, math.Min(1, float64(v)*scale)))
	}
	return out
}

func int16sToFloat(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for _, s := range in[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func resampleLinear(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	out := make([]float32, int(math.Ceil(float64(len(in))*ratio)))
	last := len(in) - 1
	for i := range out {
		pos := float64(i) / ratio
		i0 := int(pos)
		if i0 >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}
