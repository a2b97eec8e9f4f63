// Package audioconv decodes recorded utterances into the mono 16 kHz float
// samples the transcriber expects.
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
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const Rate = 16000

type Options struct {
	// MaxDuration trims the result; zero keeps everything.
	MaxDuration time.Duration
}

func (o Options) trim(x []float32) []float32 {
	if o.MaxDuration <= 0 {
		return x
	}
	n := int(o.MaxDuration.Seconds() * Rate)
	if len(x) > n {
		return x[:n]
	}
	return x
}

// pcm is interleaved audio before conversion.
type pcm struct {
	samples  []float32
	channels int
	rate     int
}

type decoder func(ctx context.Context, r io.ReadSeeker) (pcm, error)

var byExt = map[string][]decoder{
	".wav":  {decodeWAV},
	".mp3":  {decodeMP3},
	".ogg":  {decodeVorbis, decodeOpus},
	".oga":  {decodeVorbis, decodeOpus},
	".opus": {decodeOpus},
}

var byMagic = map[string][]decoder{
	"RIFF": {decodeWAV},
	"OggS": {decodeVorbis, decodeOpus},
	"ID3":  {decodeMP3},
}

// DecodeFile reads a wav, mp3, ogg vorbis or ogg opus file. Unknown
// extensions are sniffed by their magic bytes.
func DecodeFile(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decs, ok := byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		magic, _ := bufio.NewReader(f).Peek(4)
		decs, ok = byMagic[string(magic)]
		if !ok && len(magic) >= 3 {
			decs, ok = byMagic[string(magic[:3])]
		}
		if !ok {
			return nil, fmt.Errorf("unsupported format: %s (supported: wav/mp3/ogg-vorbis/ogg-opus)", path)
		}
	}

	var errs []error
	for _, dec := range decs {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		p, err := dec(ctx, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		x := resampleLinear(downmix(p.samples, p.channels), p.rate, Rate)
		return opt.trim(x), nil
	}
	return nil, fmt.Errorf("decode %s: %w", path, errors.Join(errs...))
}

func decodeWAV(_ context.Context, r io.ReadSeeker) (pcm, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return pcm{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return pcm{}, errors.New("empty wav")
	}

	bits := int(dec.BitDepth)
	if bits == 0 {
		bits = 16
	}
	p := pcm{samples: intsToFloat(pb.Data, bits), channels: 1, rate: 44100}
	if pb.Format != nil {
		p.channels = max(pb.Format.NumChannels, 1)
		if pb.Format.SampleRate > 0 {
			p.rate = pb.Format.SampleRate
		}
	}
	return p, nil
}

func decodeMP3(_ context.Context, r io.ReadSeeker) (pcm, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return pcm{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return pcm{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(&raw, binary.LittleEndian, &ints); err != nil {
		return pcm{}, err
	}
	// go-mp3 always yields 16-bit stereo
	return pcm{samples: int16sToFloat(ints), channels: 2, rate: dec.SampleRate()}, nil
}

func decodeVorbis(_ context.Context, r io.ReadSeeker) (pcm, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return pcm{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return pcm{}, errors.New("invalid ogg/vorbis stream")
	}
	return pcm{samples: samples, channels: format.Channels, rate: format.SampleRate}, nil
}

func decodeOpus(ctx context.Context, r io.ReadSeeker) (pcm, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return pcm{}, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)
	// opus decodes at 48 kHz, read about half a second at a time
	buf := make([]int16, 48_000*ch/2)
	var out []float32
	for {
		if err := ctx.Err(); err != nil {
			return pcm{}, err
		}
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, int16sToFloat(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return pcm{}, err
		}
	}
	if len(out) == 0 {
		return pcm{}, errors.New("empty opus stream")
	}
	return pcm{samples: out, channels: ch, rate: 48000}, nil
}

func intsToFloat(data []int, bits int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bits-1))
	for i, v := range data {
		out[i] = float32(min(max(float64(v)*scale, -1), 1))
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
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || inSR <= 0 || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	out := make([]float32, int(math.Ceil(float64(len(in))*ratio)))
	last := len(in) - 1
	for i := range out {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= last {
			out[i] = in[last]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i0+1]*a
	}
	return out
}
