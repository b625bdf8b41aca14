// chimeviz renders a spectrogram PNG for a WAV file, optionally zoomed to a
// window around a detected event timestamp. Useful for eyeballing why a
// candidate did or did not clear the consensus threshold.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/draw"
	"log"
	"os"
	"path/filepath"

	"github.com/eligwz/spectrogram"

	"github.com/dingercity/chimefind/internal/audio"
)

func main() {
	at := flag.Float64("at", -1, "Center the view on this timestamp in seconds (default: whole file)")
	window := flag.Float64("window", 10, "Seconds of audio around --at to render")
	width := flag.Int("width", 2048, "Output image width in pixels")
	height := flag.Int("height", 512, "Output image height in pixels (also the frequency bin count)")
	outPath := flag.String("o", "", "Output PNG path (default: <input>.png)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Println("Usage: chimeviz [--at <sec> --window <sec>] [--width N --height N] [-o out.png] <input.wav>")
		os.Exit(1)
	}
	inputPath := flag.Arg(0)

	waveform, err := audio.ReadWAV(inputPath)
	if err != nil {
		log.Fatalf("reading %s: %v", inputPath, err)
	}

	samples := waveform.Samples
	if *at >= 0 {
		half := *window / 2
		lo := int((*at - half) * float64(waveform.SampleRate))
		hi := int((*at + half) * float64(waveform.SampleRate))
		if lo < 0 {
			lo = 0
		}
		if hi > len(samples) {
			hi = len(samples)
		}
		if lo >= hi {
			log.Fatalf("--at %.2fs is outside the %.2fs recording", *at, waveform.Seconds())
		}
		samples = samples[lo:hi]
		fmt.Printf("Rendering %.2fs window around %.2fs (%d samples)\n", *window, *at, len(samples))
	} else {
		fmt.Printf("Rendering full file (%d samples at %d Hz)\n", len(samples), waveform.SampleRate)
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, *width, *height))

	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude, linear scale.
	spectrogram.Drawfft(
		img,
		samples,
		uint32(waveform.SampleRate),
		uint32(*height),
		false,
		false,
		true,
		false,
	)

	dest := *outPath
	if dest == "" {
		dest = filepath.Base(inputPath) + ".png"
	}
	if err := spectrogram.SavePng(img, dest); err != nil {
		log.Fatalf("saving %s: %v", dest, err)
	}
	fmt.Printf("Saved spectrogram to %s\n", dest)
}
