//go:build integration

package steps

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/core/download"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
	"github.com/odhiambocuttice/instagram-audio-downloader/repository"
)

// stubExtractor stands in for yt-dlp: it emits one progress event, writes
// <reel id>.mp3 and reports metadata.
type stubExtractor struct {
	downloaded int64
	total      int64
	failMsg    string
}

func (s *stubExtractor) Extract(ctx context.Context, req download.ExtractRequest, events chan<- download.Event) (*download.Metadata, error) {
	if s.failMsg != "" {
		return nil, model.NewError(model.KindEngine, "%s", s.failMsg)
	}
	id := path.Base(strings.TrimSuffix(req.URL, "/"))
	if s.total > 0 {
		events <- download.Event{Kind: download.EventDownloading, DownloadedBytes: s.downloaded, TotalBytes: s.total}
	}
	events <- download.Event{Kind: download.EventFinished}

	if err := os.WriteFile(filepath.Join(req.OutputDir, id+".mp3"), []byte("mp3"), 0644); err != nil {
		return nil, err
	}
	return &download.Metadata{ID: id, Title: "Reel " + id, Uploader: "someone"}, nil
}

// historyStore records every progress value saved.
type historyStore struct {
	*repository.MemoryTaskRepository
	mu       sync.Mutex
	progress []int
}

func (h *historyStore) Update(ctx context.Context, task *model.DownloadTask) error {
	h.mu.Lock()
	h.progress = append(h.progress, task.Progress)
	h.mu.Unlock()
	return h.MemoryTaskRepository.Update(ctx, task)
}

type downloadContext struct {
	dir       string
	store     *historyStore
	extractor *stubExtractor
	manager   *download.Manager
	cancel    context.CancelFunc
	task      *model.DownloadTask
	err       error
}

// SharedDownloadContext is reset before each scenario via Before hook
var SharedDownloadContext *downloadContext

func getDownloadContext() *downloadContext {
	return SharedDownloadContext
}

func InitializeDownloadScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "reel-download-*")
		if err != nil {
			return c, err
		}
		SharedDownloadContext = &downloadContext{
			dir:       dir,
			store:     &historyStore{MemoryTaskRepository: repository.NewMemoryTaskRepository()},
			extractor: &stubExtractor{},
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		d := getDownloadContext()
		if d != nil {
			if d.manager != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = d.manager.Shutdown(shutdownCtx)
				cancel()
			}
			if d.cancel != nil {
				d.cancel()
			}
			os.RemoveAll(d.dir)
		}
		SharedDownloadContext = nil
		return c, nil
	})

	ctx.Step(`^the extractor reports (\d+) of (\d+) bytes for "([^"]*)"$`, theExtractorReportsBytes)
	ctx.Step(`^the extractor fails with "([^"]*)"$`, theExtractorFailsWith)
	ctx.Step(`^I submit "([^"]*)"$`, iSubmit)
	ctx.Step(`^I attempt to submit "([^"]*)"$`, iAttemptToSubmit)
	ctx.Step(`^the task should be "([^"]*)" with progress (\d+)$`, theTaskShouldBeWithProgress)
	ctx.Step(`^the task file should be "([^"]*)"$`, theTaskFileShouldBe)
	ctx.Step(`^the task should have passed through progress (\d+)$`, theTaskShouldHavePassedThroughProgress)
	ctx.Step(`^the task error should mention "([^"]*)"$`, theTaskErrorShouldMention)
	ctx.Step(`^the submission should be rejected as "([^"]*)"$`, theSubmissionShouldBeRejectedAs)
}

func (d *downloadContext) start() {
	if d.manager != nil {
		return
	}
	cfg := config.Default()
	cfg.Media.Root = d.dir
	cfg.Download.Workers = 1
	cfg.Download.JobTimeout = 5 * time.Second

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.manager = download.NewManager(cfg, d.store, d.extractor)
	d.manager.Start(runCtx)
}

func theExtractorReportsBytes(downloaded, total int, url string) error {
	d := getDownloadContext()
	d.extractor.downloaded = int64(downloaded)
	d.extractor.total = int64(total)
	return nil
}

func theExtractorFailsWith(msg string) error {
	getDownloadContext().extractor.failMsg = msg
	return nil
}

func iSubmit(url string) error {
	d := getDownloadContext()
	d.start()

	task, err := d.manager.Submit(context.Background(), url)
	if err != nil {
		return fmt.Errorf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, err := d.manager.Get(context.Background(), task.ID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			d.task = current
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("task %s did not finish", task.ID)
}

func iAttemptToSubmit(url string) error {
	d := getDownloadContext()
	d.start()
	_, d.err = d.manager.Submit(context.Background(), url)
	return nil
}

func theTaskShouldBeWithProgress(status string, progress int) error {
	d := getDownloadContext()
	if string(d.task.Status) != status {
		return fmt.Errorf("expected status %q, got %q (error %q)", status, d.task.Status, d.task.ErrorMessage)
	}
	if d.task.Progress != progress {
		return fmt.Errorf("expected progress %d, got %d", progress, d.task.Progress)
	}
	return nil
}

func theTaskFileShouldBe(name string) error {
	d := getDownloadContext()
	if d.task.Filename != name {
		return fmt.Errorf("expected file %q, got %q", name, d.task.Filename)
	}
	if _, err := os.Stat(d.manager.ArtifactPath(d.task)); err != nil {
		return fmt.Errorf("artifact missing: %v", err)
	}
	return nil
}

func theTaskShouldHavePassedThroughProgress(progress int) error {
	d := getDownloadContext()
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	for _, p := range d.store.progress {
		if p == progress {
			return nil
		}
	}
	return fmt.Errorf("progress %d never saved, saw %v", progress, d.store.progress)
}

func theTaskErrorShouldMention(text string) error {
	d := getDownloadContext()
	if !strings.Contains(d.task.ErrorMessage, text) {
		return fmt.Errorf("expected error to mention %q, got %q", text, d.task.ErrorMessage)
	}
	return nil
}

func theSubmissionShouldBeRejectedAs(kind string) error {
	d := getDownloadContext()
	if d.err == nil {
		return fmt.Errorf("expected submission to fail")
	}
	if got := model.KindOf(d.err); string(got) != kind {
		return fmt.Errorf("expected %q error, got %q: %v", kind, got, d.err)
	}
	return nil
}
