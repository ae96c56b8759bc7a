// Package audio handles the WAV containers produced by synthesis: decoding,
// raw-PCM wrapping, and lossless concatenation of chunk audio.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

// Raw synthesizer output that is not already a WAV container is assumed to be
// 16-bit little-endian PCM, mono, at 24 kHz.
const (
	RawSampleRate = 24000
	RawChannels   = 1
	RawBitDepth   = 16
)

// ErrFormatMismatch is returned when chunk audio disagrees on channel count,
// sample width, or frame rate. Mismatched chunks are rejected, never
// resampled.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// Params describes a WAV stream's format.
type Params struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (p Params) String() string {
	return fmt.Sprintf("%d Hz, %d ch, %d bit", p.SampleRate, p.Channels, p.BitDepth)
}

// Decode parses WAV bytes into float32 PCM samples plus the stream format.
func Decode(data []byte) ([]float32, Params, error) {
	if len(data) == 0 {
		return nil, Params{}, errors.New("empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, Params{}, errors.New("invalid WAV file")
	}

	params := Params{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Params{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return buf.Data, params, nil
}

// Probe returns the format of WAV bytes without retaining the samples.
func Probe(data []byte) (Params, error) {
	_, params, err := Decode(data)
	return params, err
}

// Encode writes float32 PCM samples as a WAV byte slice in the given format.
func Encode(samples []float32, p Params) ([]byte, error) {
	if p.SampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", p.SampleRate)
	}

	var buf bytes.Buffer

	// wav.NewEncoder requires an io.WriteSeeker; bytes.Buffer is not one.
	sw := &seekBuffer{buf: &buf}

	enc := wav.NewEncoder(sw, p.SampleRate, p.BitDepth, p.Channels, 1) // 1 = PCM

	pcmBuf := &goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: p.SampleRate, NumChannels: p.Channels},
		SourceBitDepth: p.BitDepth,
	}

	if err := enc.Write(pcmBuf); err != nil {
		return nil, fmt.Errorf("writing PCM: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}

	return buf.Bytes(), nil
}

// WrapPCM16 wraps raw little-endian 16-bit mono PCM at 24 kHz into a WAV
// container. The sample bytes are carried over verbatim.
func WrapPCM16(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty PCM payload")
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("raw PCM length %d is not sample aligned", len(raw))
	}

	const (
		channels      = RawChannels
		bitsPerSample = RawBitDepth
		sampleRate    = RawSampleRate
		byteRate      = sampleRate * channels * bitsPerSample / 8
		blockAlign    = channels * bitsPerSample / 8
	)

	dataSize := len(raw)
	riffSize := 4 + (8 + 16) + (8 + dataSize)

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(raw)

	return buf.Bytes(), nil
}

// Concat joins chunk WAVs in the given order, inserting the given duration of
// silence between consecutive chunks. A non-positive duration inserts no gap.
// Every chunk must share the first chunk's format; a mismatch returns
// ErrFormatMismatch.
func Concat(chunks [][]byte, silence time.Duration) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to concatenate")
	}

	first, params, err := Decode(chunks[0])
	if err != nil {
		return nil, fmt.Errorf("decode chunk 0: %w", err)
	}

	silenceFrames := int(float64(params.SampleRate) * silence.Seconds())
	if silenceFrames < 0 {
		silenceFrames = 0
	}
	gap := make([]float32, silenceFrames*params.Channels)

	merged := append([]float32(nil), first...)
	for i, chunk := range chunks[1:] {
		samples, p, err := Decode(chunk)
		if err != nil {
			return nil, fmt.Errorf("decode chunk %d: %w", i+1, err)
		}
		if p != params {
			return nil, fmt.Errorf("%w: chunk %d is %s, chunk 0 is %s", ErrFormatMismatch, i+1, p, params)
		}
		merged = append(merged, gap...)
		merged = append(merged, samples...)
	}

	return Encode(merged, params)
}
