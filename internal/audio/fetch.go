package audio

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/dingercity/chimefind/pkg/utils"
)

// IsVideoURL reports whether s looks like a fetchable http(s) URL rather
// than a local file path.
func IsVideoURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// FetchAudio downloads the audio track of a video URL via yt-dlp and
// converts it to a canonical mono WAV in outputDir. It returns the path of
// the converted WAV.
func FetchAudio(ctx context.Context, videoURL, outputDir string, sampleRate int) (string, error) {
	if !IsVideoURL(videoURL) {
		return "", fmt.Errorf("not a fetchable URL: %s", videoURL)
	}
	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	// Installs a managed yt-dlp binary when none is on PATH.
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return "", fmt.Errorf("installing yt-dlp: %w", err)
	}

	dl := ytdlp.New().
		NoPlaylist().
		NoProgress().
		ExtractAudio().
		AudioFormat("wav").
		Print("after_move:filepath").
		Output(filepath.Join(outputDir, "%(id)s.%(ext)s"))

	result, err := dl.Run(ctx, videoURL)
	if err != nil {
		return "", fmt.Errorf("yt-dlp download failed: %w", err)
	}

	downloaded := strings.TrimSpace(result.Stdout)
	if downloaded == "" {
		return "", fmt.Errorf("yt-dlp reported no output file for %s", videoURL)
	}
	if _, err := os.Stat(downloaded); err != nil {
		return "", fmt.Errorf("yt-dlp output file missing: %w", err)
	}

	// yt-dlp's own WAV extraction keeps the source channel layout and
	// rate, so a second pass pins both to the canonical form.
	wavPath, err := ConvertToMonoWAV(ctx, downloaded, outputDir, ConvertWAVConfig{SampleRate: sampleRate})
	if err != nil {
		return "", err
	}
	if wavPath != downloaded {
		utils.DeleteFile(downloaded)
	}
	return wavPath, nil
}
