package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// h264Format prefers an avc1 mp4 stream for playback compatibility and
// degrades through progressively looser selectors.
const h264Format = "bestvideo[vcodec^=avc1][ext=mp4]+bestaudio[ext=m4a]/" +
	"bestvideo[vcodec^=avc1]+bestaudio/" +
	"bestvideo[ext=mp4]+bestaudio[ext=m4a]/" +
	"best[ext=mp4]/best"

const audioFormat = "bestaudio/best"

// Client invokes the local yt-dlp binary.
type Client struct {
	binary       string
	probeTimeout time.Duration
}

func NewClient() *Client {
	return &Client{
		binary:       "yt-dlp",
		probeTimeout: 2 * time.Minute,
	}
}

// CheckDependencies verifies that the external tools the pipeline shells
// out to are installed.
func CheckDependencies() error {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("missing dependency: ffmpeg is required for stream merging and was not found on PATH")
	}
	return nil
}

// Title fetches the video title without downloading anything.
func (c *Client) Title(ctx context.Context, videoURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary,
		"--no-playlist", "--no-warnings", "--skip-download", "--print", "title", videoURL)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp probe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	title := strings.TrimSpace(out.String())
	if title == "" {
		return "", fmt.Errorf("yt-dlp returned an empty title")
	}
	// A playlist probe may still print several lines; the first is ours.
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	return title, nil
}

// DownloadVideo downloads and merges the best H.264 video + audio into
// outPath. Progress percentages are reported through the callback as they
// are parsed from yt-dlp output.
func (c *Client) DownloadVideo(ctx context.Context, videoURL, outPath string, progress func(percent float64)) error {
	args := videoArgs(videoURL, outPath)
	return c.run(ctx, args, progress)
}

// DownloadAudio downloads the best audio stream using a %(ext)s output
// template; the final extension is whatever container the stream ships in.
func (c *Client) DownloadAudio(ctx context.Context, videoURL, outTemplate string, progress func(percent float64)) error {
	args := audioArgs(videoURL, outTemplate)
	return c.run(ctx, args, progress)
}

func videoArgs(videoURL, outPath string) []string {
	return []string{
		"--no-playlist",
		"--no-warnings",
		"--newline",
		"-f", h264Format,
		"--merge-output-format", "mp4",
		"-o", outPath,
		videoURL,
	}
}

func audioArgs(videoURL, outTemplate string) []string {
	return []string{
		"--no-playlist",
		"--no-warnings",
		"--newline",
		"-f", audioFormat,
		"-o", outTemplate,
		videoURL,
	}
}

// run executes yt-dlp streaming its output line by line, feeding download
// percentages to the progress callback and keeping a stderr tail for the
// error message.
func (c *Client) run(ctx context.Context, args []string, progress func(percent float64)) error {
	cmd := exec.CommandContext(ctx, c.binary, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	var errBuf strings.Builder
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if pct, ok := ParseProgress(scanner.Text()); ok && progress != nil {
				progress(pct)
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			// Keep a bounded tail; the pipe must still be drained.
			if errBuf.Len() < 8192 {
				errBuf.WriteString(scanner.Text())
				errBuf.WriteByte('\n')
			}
		}
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(errBuf.String()))
	}
	return nil
}

// ParseProgress extracts the percentage from a yt-dlp --newline progress
// line such as "[download]  42.3% of 10.55MiB at 1.97MiB/s ETA 00:04".
func ParseProgress(line string) (float64, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "[download]" {
		return 0, false
	}
	raw, ok := strings.CutSuffix(fields[1], "%")
	if !ok {
		return 0, false
	}
	pct, err := strconv.ParseFloat(raw, 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}
