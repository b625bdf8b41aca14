// Package audio handles acquisition and decoding of recordings into mono
// float64 waveforms at a caller-chosen sample rate.
package audio

import (
	"fmt"
	"time"
)

// Waveform is a decoded mono recording. Samples are normalized to [-1, 1].
// Once handed to the detection pipeline a Waveform is treated as read-only;
// workers share one reference without locking.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the waveform length as a time.Duration.
func (w *Waveform) Duration() time.Duration {
	if w.SampleRate == 0 {
		return 0
	}
	secs := float64(len(w.Samples)) / float64(w.SampleRate)
	return time.Duration(secs * float64(time.Second))
}

// Seconds returns the waveform length in seconds.
func (w *Waveform) Seconds() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// DecodeError reports unreadable or malformed input audio. It is fatal for
// a detection run.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EmptyAudioError reports input that decoded to zero samples. It is fatal
// for a detection run.
type EmptyAudioError struct {
	Path string
}

func (e *EmptyAudioError) Error() string {
	return fmt.Sprintf("audio %s contains no samples", e.Path)
}
