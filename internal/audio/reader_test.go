package audio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	in := make([]float64, 4410)
	for i := range in {
		in[i] = 0.5 * math.Sin(2*math.Pi*1000*float64(i)/22050)
	}

	if err := WriteWAV(path, in, 22050); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	w, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if w.SampleRate != 22050 {
		t.Errorf("Expected sample rate 22050, got %d", w.SampleRate)
	}
	if len(w.Samples) != len(in) {
		t.Fatalf("Expected %d samples, got %d", len(in), len(w.Samples))
	}

	// 16-bit quantization bounds the round trip error.
	for i := range in {
		if math.Abs(w.Samples[i]-in[i]) > 2.0/32768 {
			t.Fatalf("Sample %d out of quantization tolerance: got %g, want %g", i, w.Samples[i], in[i])
		}
	}
}

func TestWriteWAVClampsOverdrive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hot.wav")

	if err := WriteWAV(path, []float64{2.5, -3.0, 0.0}, 22050); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	w, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	for i, s := range w.Samples {
		if s > 1 || s < -1 {
			t.Errorf("Sample %d escaped [-1, 1]: %f", i, s)
		}
	}
}

func TestReadWAVMissingFile(t *testing.T) {
	var decodeErr *DecodeError
	_, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav"))
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
	if decodeErr.Path == "" {
		t.Error("DecodeError should carry the offending path")
	}
}

func TestReadWAVGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("definitely not RIFF data"), 0644); err != nil {
		t.Fatal(err)
	}

	var decodeErr *DecodeError
	if _, err := ReadWAV(path); !errors.As(err, &decodeErr) {
		t.Fatalf("Expected DecodeError for garbage input, got %v", err)
	}
}

func TestReadWAVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	if err := WriteWAV(path, nil, 22050); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	var emptyErr *EmptyAudioError
	if _, err := ReadWAV(path); !errors.As(err, &emptyErr) {
		t.Fatalf("Expected EmptyAudioError for zero-sample file, got %v", err)
	}
}

func TestResample(t *testing.T) {
	in := make([]float64, 1000)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * 100 * float64(i) / 44100)
	}

	out := Resample(in, 44100, 22050)
	if got, want := len(out), 500; got != want {
		t.Errorf("Expected %d samples after downsampling, got %d", want, got)
	}

	// The downsampled tone should track the original at half the index.
	for i := 1; i < len(out)-1; i++ {
		if math.Abs(out[i]-in[2*i]) > 0.01 {
			t.Fatalf("Downsample drift at %d: got %g, want %g", i, out[i], in[2*i])
		}
	}

	same := Resample(in, 44100, 44100)
	if len(same) != len(in) {
		t.Errorf("Same-rate resample should preserve length, got %d", len(same))
	}
	for i := range in {
		if same[i] != in[i] {
			t.Fatal("Same-rate resample should be an exact copy")
		}
	}
}

func TestWaveformDuration(t *testing.T) {
	w := &Waveform{Samples: make([]float64, 44100), SampleRate: 22050}
	if got := w.Seconds(); math.Abs(got-2.0) > 1e-12 {
		t.Errorf("Expected 2 seconds, got %f", got)
	}

	empty := &Waveform{}
	if empty.Seconds() != 0 || empty.Duration() != 0 {
		t.Error("Zero-rate waveform should report zero duration")
	}
}

func TestIsVideoURL(t *testing.T) {
	valid := []string{
		"https://youtube.com/watch?v=dQw4w9WgXcQ",
		"http://example.com/clip",
	}
	for _, u := range valid {
		if !IsVideoURL(u) {
			t.Errorf("Expected %q to be treated as a video URL", u)
		}
	}

	invalid := []string{"soundtrack.wav", "/tmp/audio.mp3", "ftp://host/file"}
	for _, u := range invalid {
		if IsVideoURL(u) {
			t.Errorf("Expected %q to be rejected", u)
		}
	}
}
