package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"ytgrab/internal/domain/entity"
	"ytgrab/internal/repository/files"
	"ytgrab/internal/repository/memory"
)

var ErrUnsupportedURL = errors.New("only YouTube URLs are supported")

type JobRepo interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, jobID string) (entity.Job, error)
	SetStatus(ctx context.Context, jobID string, status entity.JobStatus) error
	SetProgress(ctx context.Context, jobID string, percent float64) error
	SetTitle(ctx context.Context, jobID, title string) error
	Complete(ctx context.Context, jobID, videoURL, audioURL, videoPath, audioPath string) error
	Fail(ctx context.Context, jobID, message string) error
	Delete(ctx context.Context, jobID string) error
	ExpiredBefore(ctx context.Context, cutoff time.Time) []string
}

type Extractor interface {
	Title(ctx context.Context, videoURL string) (string, error)
	DownloadVideo(ctx context.Context, videoURL, outPath string, progress func(percent float64)) error
	DownloadAudio(ctx context.Context, videoURL, outTemplate string, progress func(percent float64)) error
}

type Transcoder interface {
	EncodeMP3(ctx context.Context, inputPath, outputPath string) error
}

type Storage interface {
	OutputPath(name string) string
	PublicURL(path string) string
	FindByExt(jobID, ext string) (string, error)
	FindAudioSource(jobID string) (string, error)
	RemoveJob(jobID string) (int, error)
	SweepOlderThan(maxAge time.Duration) (int, error)
}

// DownloadUseCase owns the download pipeline: one background goroutine per
// submitted job, bounded by a fixed number of worker slots.
type DownloadUseCase struct {
	Jobs       JobRepo
	Extractor  Extractor
	Transcoder Transcoder
	Storage    Storage

	slots chan struct{}
}

func NewDownloadUseCase(jobs JobRepo, ex Extractor, tr Transcoder, st Storage, workerCount int) *DownloadUseCase {
	if workerCount <= 0 {
		workerCount = 3
	}
	return &DownloadUseCase{
		Jobs:       jobs,
		Extractor:  ex,
		Transcoder: tr,
		Storage:    st,
		slots:      make(chan struct{}, workerCount),
	}
}

// ValidateURL rejects anything that is not an http(s) YouTube URL. This
// runs synchronously, before a job is created.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty URL", ErrUnsupportedURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	switch host {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return nil
	}
	return fmt.Errorf("%w: host %q", ErrUnsupportedURL, host)
}

// Submit validates the URL, registers a pending job, and starts its
// background task. The returned job reflects the state at creation time.
func (u *DownloadUseCase) Submit(ctx context.Context, rawURL string) (*entity.Job, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	job := &entity.Job{
		ID:        uuid.New().String()[:8],
		URL:       rawURL,
		Status:    entity.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := u.Jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	go u.run(job.ID, rawURL)

	log.Printf("[job %s] accepted URL %s", job.ID, rawURL)
	return job, nil
}

func (u *DownloadUseCase) Status(ctx context.Context, jobID string) (entity.Job, error) {
	return u.Jobs.Get(ctx, jobID)
}

// Cleanup removes a job's staged files and evicts its record. Unknown ids
// are not an error: the endpoint is idempotent.
func (u *DownloadUseCase) Cleanup(ctx context.Context, jobID string) error {
	removed, err := u.Storage.RemoveJob(jobID)
	if err != nil {
		return err
	}
	if err := u.Jobs.Delete(ctx, jobID); err != nil && !errors.Is(err, memory.ErrNotFound) {
		return err
	}
	log.Printf("[job %s] cleaned up, %d file(s) removed", jobID, removed)
	return nil
}

// SweepOnce removes staged files older than the retention window and
// evicts expired terminal job records.
func (u *DownloadUseCase) SweepOnce(ctx context.Context, retention time.Duration) {
	removed, err := u.Storage.SweepOlderThan(retention)
	if err != nil {
		log.Printf("sweep: failed to remove stale files: %v", err)
	} else if removed > 0 {
		log.Printf("sweep: removed %d stale file(s)", removed)
	}

	cutoff := time.Now().Add(-retention)
	for _, id := range u.Jobs.ExpiredBefore(ctx, cutoff) {
		if err := u.Jobs.Delete(ctx, id); err != nil && !errors.Is(err, memory.ErrNotFound) {
			log.Printf("sweep: failed to evict job %s: %v", id, err)
			continue
		}
		log.Printf("sweep: evicted expired job %s", id)
	}
}

// SweepLoop runs the retention sweep periodically until ctx is canceled.
// One pass runs immediately so stale files from a previous process are
// cleared at startup.
func (u *DownloadUseCase) SweepLoop(ctx context.Context, interval, retention time.Duration) {
	u.SweepOnce(ctx, retention)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.SweepOnce(ctx, retention)
		}
	}
}

// run is the single writer for its job. It is detached from the request
// context: an accepted job keeps running after the submitter disconnects.
func (u *DownloadUseCase) run(jobID, videoURL string) {
	u.slots <- struct{}{}
	defer func() { <-u.slots }()

	ctx := context.Background()

	if err := u.Jobs.SetStatus(ctx, jobID, entity.StatusDownloading); err != nil {
		log.Printf("[job %s] %v", jobID, err)
		return
	}

	title, err := u.Extractor.Title(ctx, videoURL)
	if err != nil {
		u.fail(ctx, jobID, "failed to fetch video info", err)
		return
	}
	if err := u.Jobs.SetTitle(ctx, jobID, title); err != nil {
		log.Printf("[job %s] %v", jobID, err)
	}
	safeTitle := files.SanitizeTitle(title)
	log.Printf("[job %s] downloading %q", jobID, title)

	onProgress := func(pct float64) {
		_ = u.Jobs.SetProgress(ctx, jobID, pct)
	}

	videoPath := u.Storage.OutputPath(jobID + "_" + safeTitle + ".mp4")
	if err := u.Extractor.DownloadVideo(ctx, videoURL, videoPath, onProgress); err != nil {
		u.fail(ctx, jobID, "video download failed", err)
		return
	}

	if err := u.Jobs.SetStatus(ctx, jobID, entity.StatusProcessing); err != nil {
		log.Printf("[job %s] %v", jobID, err)
		return
	}
	// The percentage starts over for the audio stage.
	_ = u.Jobs.SetProgress(ctx, jobID, 0)

	audioTemplate := u.Storage.OutputPath(jobID + "_" + safeTitle + ".%(ext)s")
	if err := u.Extractor.DownloadAudio(ctx, videoURL, audioTemplate, onProgress); err != nil {
		u.fail(ctx, jobID, "audio download failed", err)
		return
	}

	mp3Path := u.Storage.OutputPath(jobID + "_" + safeTitle + ".mp3")
	rawAudio, err := u.Storage.FindAudioSource(jobID)
	switch {
	case err == nil:
		if err := u.Transcoder.EncodeMP3(ctx, rawAudio, mp3Path); err != nil {
			u.fail(ctx, jobID, "mp3 encode failed", err)
			return
		}
		if err := os.Remove(rawAudio); err != nil {
			log.Printf("[job %s] failed to remove raw audio %s: %v", jobID, rawAudio, err)
		}
	default:
		// The stream may already have shipped as mp3, in which case
		// there is nothing to encode.
		if _, ferr := u.Storage.FindByExt(jobID, ".mp3"); ferr != nil {
			u.fail(ctx, jobID, "audio stream missing after download", err)
			return
		}
	}

	// yt-dlp occasionally writes a different container than requested;
	// resolve the final names by prefix.
	if found, err := u.Storage.FindByExt(jobID, ".mp4"); err == nil {
		videoPath = found
	}
	if found, err := u.Storage.FindByExt(jobID, ".mp3"); err == nil {
		mp3Path = found
	}

	err = u.Jobs.Complete(ctx, jobID,
		u.Storage.PublicURL(videoPath), u.Storage.PublicURL(mp3Path), videoPath, mp3Path)
	if err != nil {
		log.Printf("[job %s] %v", jobID, err)
		return
	}
	log.Printf("[job %s] completed", jobID)
}

func (u *DownloadUseCase) fail(ctx context.Context, jobID, stage string, err error) {
	message := fmt.Sprintf("%s: %v", stage, err)
	log.Printf("[job %s] %s", jobID, message)
	if ferr := u.Jobs.Fail(ctx, jobID, message); ferr != nil {
		log.Printf("[job %s] failed to record failure: %v", jobID, ferr)
	}
	// Leftover partial files would otherwise sit until the sweep.
	if _, rerr := u.Storage.RemoveJob(jobID); rerr != nil {
		log.Printf("[job %s] failed to remove partial files: %v", jobID, rerr)
	}
}
