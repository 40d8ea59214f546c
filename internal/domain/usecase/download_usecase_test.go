package usecase

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"ytgrab/internal/domain/entity"
	"ytgrab/internal/repository/files"
	"ytgrab/internal/repository/memory"
)

type fakeExtractor struct {
	title    string
	titleErr error
	videoErr error
	audioErr error
}

func (f *fakeExtractor) Title(ctx context.Context, videoURL string) (string, error) {
	if f.titleErr != nil {
		return "", f.titleErr
	}
	return f.title, nil
}

func (f *fakeExtractor) DownloadVideo(ctx context.Context, videoURL, outPath string, progress func(float64)) error {
	if f.videoErr != nil {
		return f.videoErr
	}
	if progress != nil {
		progress(50)
		progress(100)
	}
	return os.WriteFile(outPath, []byte("video"), 0644)
}

func (f *fakeExtractor) DownloadAudio(ctx context.Context, videoURL, outTemplate string, progress func(float64)) error {
	if f.audioErr != nil {
		return f.audioErr
	}
	// yt-dlp expands the template with the stream's real container.
	path := strings.ReplaceAll(outTemplate, "%(ext)s", "webm")
	return os.WriteFile(path, []byte("audio"), 0644)
}

type fakeTranscoder struct {
	err error
}

func (f *fakeTranscoder) EncodeMP3(ctx context.Context, inputPath, outputPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("mp3"), 0644)
}

func newTestUseCase(t *testing.T, ex Extractor, tr Transcoder) (*DownloadUseCase, *memory.JobRepo, *files.Storage) {
	t.Helper()
	store, err := files.NewStorage(t.TempDir(), "/yt/downloads")
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	repo := memory.NewJobRepo()
	return NewDownloadUseCase(repo, ex, tr, store, 2), repo, store
}

func waitForTerminal(t *testing.T, u *DownloadUseCase, jobID string) entity.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := u.Status(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return entity.Job{}
}

func TestValidateURL(t *testing.T) {
	cases := []struct {
		name string
		url  string
		ok   bool
	}{
		{"watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"short URL", "https://youtu.be/dQw4w9WgXcQ", true},
		{"mobile", "https://m.youtube.com/watch?v=x", true},
		{"bare host", "http://youtube.com/watch?v=x", true},
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"other site", "https://vimeo.com/12345", false},
		{"lookalike host", "https://youtube.com.evil.example/watch", false},
		{"no scheme", "youtube.com/watch?v=x", false},
		{"ftp", "ftp://youtube.com/video", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateURL(tc.url)
			if tc.ok && err != nil {
				t.Errorf("ValidateURL(%q) = %v, want nil", tc.url, err)
			}
			if !tc.ok && !errors.Is(err, ErrUnsupportedURL) {
				t.Errorf("ValidateURL(%q) = %v, want ErrUnsupportedURL", tc.url, err)
			}
		})
	}
}

func TestSubmitRejectsBeforeJobCreation(t *testing.T) {
	u, repo, _ := newTestUseCase(t, &fakeExtractor{}, &fakeTranscoder{})

	if _, err := u.Submit(context.Background(), "https://vimeo.com/1"); !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("expected ErrUnsupportedURL, got %v", err)
	}
	if ids := repo.ExpiredBefore(context.Background(), time.Now().Add(time.Hour)); len(ids) != 0 {
		t.Errorf("a job record was created for a rejected URL")
	}
}

func TestSubmitCompletesPipeline(t *testing.T) {
	ex := &fakeExtractor{title: `My: "Great" Video?`}
	u, _, store := newTestUseCase(t, ex, &fakeTranscoder{})

	job, err := u.Submit(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != entity.StatusPending {
		t.Errorf("new job should be pending, got %s", job.Status)
	}
	if len(job.ID) != 8 {
		t.Errorf("expected 8-char job id, got %q", job.ID)
	}

	done := waitForTerminal(t, u, job.ID)
	if done.Status != entity.StatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", done.Status, done.Error)
	}
	if done.Title != ex.title {
		t.Errorf("title not recorded: %q", done.Title)
	}
	if done.Progress != 100 {
		t.Errorf("expected progress 100, got %v", done.Progress)
	}
	if !strings.HasPrefix(done.VideoURL, "/yt/downloads/") || !strings.HasSuffix(done.VideoURL, ".mp4") {
		t.Errorf("unexpected video URL %q", done.VideoURL)
	}
	if !strings.HasSuffix(done.AudioURL, ".mp3") {
		t.Errorf("unexpected audio URL %q", done.AudioURL)
	}
	if strings.ContainsAny(done.VideoURL, `:?"`) {
		t.Errorf("hostile characters leaked into filename: %q", done.VideoURL)
	}

	if _, err := os.Stat(done.VideoPath); err != nil {
		t.Errorf("video file missing: %v", err)
	}
	if _, err := os.Stat(done.AudioPath); err != nil {
		t.Errorf("mp3 file missing: %v", err)
	}
	if _, err := store.FindAudioSource(job.ID); err == nil {
		t.Error("raw audio intermediate was not removed")
	}
}

func TestSubmitFailsOnExtractorError(t *testing.T) {
	ex := &fakeExtractor{title: "v", videoErr: errors.New("HTTP Error 403: Forbidden")}
	u, _, store := newTestUseCase(t, ex, &fakeTranscoder{})

	job, err := u.Submit(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	done := waitForTerminal(t, u, job.ID)
	if done.Status != entity.StatusFailed {
		t.Fatalf("expected failed, got %s", done.Status)
	}
	if !strings.Contains(done.Error, "video download failed") || !strings.Contains(done.Error, "403") {
		t.Errorf("error message not descriptive: %q", done.Error)
	}
	if removed, _ := store.RemoveJob(job.ID); removed != 0 {
		t.Errorf("partial files left behind after failure: %d", removed)
	}
}

func TestSubmitFailsOnProbeError(t *testing.T) {
	ex := &fakeExtractor{titleErr: errors.New("video unavailable")}
	u, _, _ := newTestUseCase(t, ex, &fakeTranscoder{})

	job, err := u.Submit(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitForTerminal(t, u, job.ID)
	if done.Status != entity.StatusFailed {
		t.Fatalf("expected failed, got %s", done.Status)
	}
	if !strings.Contains(done.Error, "failed to fetch video info") {
		t.Errorf("unexpected error message: %q", done.Error)
	}
}

func TestSubmitFailsOnTranscoderError(t *testing.T) {
	ex := &fakeExtractor{title: "v"}
	u, _, _ := newTestUseCase(t, ex, &fakeTranscoder{err: errors.New("unsupported codec")})

	job, err := u.Submit(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitForTerminal(t, u, job.ID)
	if done.Status != entity.StatusFailed {
		t.Fatalf("expected failed, got %s", done.Status)
	}
	if !strings.Contains(done.Error, "mp3 encode failed") {
		t.Errorf("unexpected error message: %q", done.Error)
	}
}

func TestCleanup(t *testing.T) {
	u, _, _ := newTestUseCase(t, &fakeExtractor{title: "v"}, &fakeTranscoder{})

	job, err := u.Submit(context.Background(), "https://youtu.be/abc")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	done := waitForTerminal(t, u, job.ID)

	if err := u.Cleanup(context.Background(), job.ID); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := u.Status(context.Background(), job.ID); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("job record survived cleanup: %v", err)
	}
	if _, err := os.Stat(done.VideoPath); !os.IsNotExist(err) {
		t.Error("video file survived cleanup")
	}

	// Second cleanup of the same id is a no-op, not an error.
	if err := u.Cleanup(context.Background(), job.ID); err != nil {
		t.Errorf("repeat Cleanup: %v", err)
	}
}

func TestSweepOnce(t *testing.T) {
	u, repo, store := newTestUseCase(t, &fakeExtractor{title: "v"}, &fakeTranscoder{})
	ctx := context.Background()

	old := &entity.Job{
		ID:        "oldjob01",
		URL:       "https://youtu.be/old",
		Status:    entity.StatusCompleted,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("Create: %v", err)
	}
	stalePath := store.OutputPath("oldjob01_v.mp4")
	if err := os.WriteFile(stalePath, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	staleTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stalePath, staleTime, staleTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	u.SweepOnce(ctx, time.Hour)

	if _, err := repo.Get(ctx, "oldjob01"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expired job survived the sweep: %v", err)
	}
	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Error("stale file survived the sweep")
	}
}
