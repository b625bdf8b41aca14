package audio

import (
	"errors"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadWAV decodes a PCM WAV file into a mono, normalized Waveform.
// Multi-channel input is downmixed by averaging channels. The samples are
// returned at the file's native rate; use Resample to move them to the
// canonical rate.
func ReadWAV(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, &DecodeError{Path: path, Err: errors.New("not a valid WAV file")}
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("reading PCM data: %w", err)}
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, &EmptyAudioError{Path: path}
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("invalid channel count %d", channels)}
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("unsupported bit depth %d", bitDepth)}
	}
	scale := 1.0 / float64(int64(1)<<uint(bitDepth-1))

	frames := len(buf.Data) / channels
	if frames == 0 {
		return nil, &EmptyAudioError{Path: path}
	}

	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) * scale
		}
		samples[i] = sum / float64(channels)
	}

	return &Waveform{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// WriteWAV encodes a mono float64 waveform as 16-bit PCM. Used for trimmed
// template assets and test fixtures.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing PCM data to %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return nil
}
