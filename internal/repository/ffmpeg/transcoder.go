package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const (
	audioCodec   = "libmp3lame"
	audioBitrate = "192k"
)

// Transcoder invokes the local ffmpeg binary.
type Transcoder struct {
	binary string
}

func NewTranscoder() *Transcoder {
	return &Transcoder{binary: "ffmpeg"}
}

// EncodeMP3 re-encodes the audio stream of inputPath into a 192k MP3 at
// outputPath, overwriting any existing file.
func (t *Transcoder) EncodeMP3(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, t.binary, mp3Args(inputPath, outputPath)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg mp3 encode failed: %w: %s", err, tail(stderr.String(), 2048))
	}
	return nil
}

func mp3Args(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", audioCodec,
		"-b:a", audioBitrate,
		outputPath,
	}
}

// tail returns at most n trailing bytes of s; ffmpeg puts the useful part
// of its diagnostics last.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
