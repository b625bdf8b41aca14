package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dingercity/chimefind/pkg/utils"
)

type ConvertWAVConfig struct {
	SampleRate int // e.g. 11025, 22050, 44100
}

// ConvertToMonoWAV converts any ffmpeg-readable audio or video file to a
// mono PCM WAV at the requested rate and saves it to outputDir, preserving
// the base filename.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}

	// Bound conversion time when the caller set no deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	baseName := filepath.Base(inputPath)
	ext := filepath.Ext(baseName)
	outputPath := filepath.Join(outputDir, strings.TrimSuffix(baseName, ext)+".wav")

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-vn", // drop any video stream
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &DecodeError{Path: inputPath, Err: fmt.Errorf("ffmpeg failed: %v (%s)", err, out)}
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}
