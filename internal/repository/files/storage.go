package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage manages the local staging directory that downloaded files are
// written to and served from.
type Storage struct {
	baseDir      string
	publicPrefix string
}

func NewStorage(baseDir, publicPrefix string) (*Storage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory %s: %w", baseDir, err)
	}
	return &Storage{
		baseDir:      baseDir,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
	}, nil
}

func (s *Storage) Dir() string {
	return s.baseDir
}

// OutputPath builds the path for a named output file inside the staging dir.
func (s *Storage) OutputPath(name string) string {
	return filepath.Join(s.baseDir, name)
}

// PublicURL maps a staged file path to the URL it is served under.
func (s *Storage) PublicURL(path string) string {
	return s.publicPrefix + "/" + filepath.Base(path)
}

// SanitizeTitle turns a video title into a safe filename fragment:
// filesystem-hostile characters are stripped and the result is capped
// at 100 runes.
func SanitizeTitle(title string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, title)
	safe = strings.TrimSpace(safe)
	runes := []rune(safe)
	if len(runes) > 100 {
		return string(runes[:100])
	}
	return safe
}

// FindByExt locates a job's output file by prefix glob. yt-dlp sometimes
// writes a different extension than requested, so lookups go through the
// job id prefix rather than an exact name.
func (s *Storage) FindByExt(jobID, ext string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, jobID+"_*"+ext))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s file found for job %s", ext, jobID)
	}
	return matches[0], nil
}

// FindAudioSource locates the raw audio stream downloaded for a job:
// the first job-prefixed file that is neither the merged video nor an
// already encoded mp3.
func (s *Storage) FindAudioSource(jobID string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, jobID+"_*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".mp4", ".mp3", ".part":
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("no raw audio file found for job %s", jobID)
}

// RemoveJob deletes every file belonging to the job and returns how many
// were removed.
func (s *Storage) RemoveJob(jobID string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.baseDir, jobID+"_*"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", m, err)
		}
		removed++
	}
	return removed, nil
}

// SweepOlderThan removes staged files whose modification time is older
// than maxAge and returns how many were removed.
func (s *Storage) SweepOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.baseDir, e.Name())); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}
