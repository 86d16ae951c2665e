package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 50

	// artifactExt is the container the extractor is asked to produce.
	artifactExt = ".mp3"
	saveTimeout = 10 * time.Second
)

// TaskStore persists download tasks. GetByID returns nil, nil when the task
// does not exist.
type TaskStore interface {
	Create(ctx context.Context, task *model.DownloadTask) error
	GetByID(ctx context.Context, id string) (*model.DownloadTask, error)
	ListRecent(ctx context.Context, limit int) ([]*model.DownloadTask, error)
	Update(ctx context.Context, task *model.DownloadTask) error
}

// Publisher fans task snapshots out to progress subscribers.
type Publisher interface {
	PublishTask(ctx context.Context, task *model.DownloadTask) error
}

// SnapshotReader returns a cached task snapshot, or nil, nil on a miss.
type SnapshotReader interface {
	GetTask(ctx context.Context, id string) (*model.DownloadTask, error)
}

// Archiver copies a finished artifact to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, localPath, objectName string) error
}

// Manager owns the download task lifecycle. Each queued task is driven by
// exactly one worker, which is the only writer of that task until it is
// terminal.
type Manager struct {
	mediaDir   string
	workers    int
	maxBatch   int
	jobTimeout time.Duration

	store     TaskStore
	extractor Extractor
	publisher Publisher
	snapshots SnapshotReader
	archiver  Archiver
	now       func() time.Time
	newID     func() string

	mu     sync.Mutex
	closed bool
	queue  chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithPublisher publishes every saved snapshot.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithSnapshotCache serves finished tasks from c before hitting the store.
func WithSnapshotCache(c SnapshotReader) Option {
	return func(m *Manager) { m.snapshots = c }
}

// WithArchiver archives completed artifacts.
func WithArchiver(a Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDFunc overrides task id generation.
func WithIDFunc(f func() string) Option {
	return func(m *Manager) { m.newID = f }
}

// NewManager creates a Manager from the download section of cfg.
func NewManager(cfg *config.Config, store TaskStore, extractor Extractor, opts ...Option) *Manager {
	m := &Manager{
		mediaDir:   cfg.Media.Root,
		workers:    cfg.Download.Workers,
		maxBatch:   cfg.Download.MaxBatch,
		jobTimeout: cfg.Download.JobTimeout,
		store:      store,
		extractor:  extractor,
		now:        time.Now,
		newID:      uuid.NewString,
		queue:      make(chan string, cfg.Download.QueueSize),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the worker pool. Workers stop when ctx is cancelled or
// Shutdown is called.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	for range m.workers {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runWorker(ctx)
		}()
	}

	logger.Info("download manager started",
		logger.Int("workers", m.workers),
		logger.Int("queueSize", cap(m.queue)))
}

// Shutdown stops accepting work, cancels in-flight jobs and waits for the
// workers to exit or ctx to expire. Tasks still queued are marked failed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("download manager stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("download manager shutdown: %w", ctx.Err())
	}
}

// Submit validates url, records a pending task and queues it. It never waits
// for the download itself.
func (m *Manager) Submit(ctx context.Context, rawURL string) (*model.DownloadTask, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	return m.submit(ctx, u)
}

// SubmitBatch validates every URL before creating any task.
func (m *Manager) SubmitBatch(ctx context.Context, urls []string) ([]*model.DownloadTask, error) {
	if len(urls) == 0 {
		return nil, model.ValidationError("provide at least one URL")
	}
	if len(urls) > m.maxBatch {
		return nil, model.ValidationError("too many URLs: %d (max %d)", len(urls), m.maxBatch)
	}

	valid := make([]string, 0, len(urls))
	for i, raw := range urls {
		u, err := ValidateURL(raw)
		if err != nil {
			return nil, model.ValidationError("url %d: %s", i, errMessage(err))
		}
		valid = append(valid, u)
	}

	tasks := make([]*model.DownloadTask, 0, len(valid))
	for _, u := range valid {
		task, err := m.submit(ctx, u)
		if task != nil {
			tasks = append(tasks, task)
		}
		if err != nil {
			return tasks, err
		}
	}
	return tasks, nil
}

func (m *Manager) submit(ctx context.Context, u string) (*model.DownloadTask, error) {
	task := model.NewDownloadTask(m.newID(), u, m.now())
	if err := m.store.Create(ctx, task); err != nil {
		return nil, model.WrapError(model.KindIO, "create task", err)
	}
	// Published before the task is queued so no worker snapshot can precede it.
	m.publish(ctx, task)

	if reason := m.enqueue(task.ID); reason != "" {
		task.Fail(reason)
		m.save(ctx, task)
		logger.Warn("download task rejected", logger.String("taskId", task.ID), logger.String("reason", reason))
		return task.Clone(), model.NewError(model.KindUnavailable, "%s, try again later", reason)
	}

	logger.Info("download task queued", logger.String("taskId", task.ID), logger.String("url", u))
	return task.Clone(), nil
}

// enqueue returns the rejection reason, or "" once id is queued.
func (m *Manager) enqueue(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "server shutting down"
	}
	select {
	case m.queue <- id:
		return ""
	default:
		return "download queue is full"
	}
}

// Get returns a snapshot of the task. Terminal snapshots never change, so
// those are served from the snapshot cache when one is configured.
func (m *Manager) Get(ctx context.Context, id string) (*model.DownloadTask, error) {
	if m.snapshots != nil {
		cached, err := m.snapshots.GetTask(ctx, id)
		if err != nil {
			logger.Debug("read cached task", logger.String("taskId", id), logger.ErrorField(err))
		} else if cached != nil && cached.Status.IsTerminal() {
			return cached, nil
		}
	}

	task, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, model.WrapError(model.KindIO, "get task", err)
	}
	if task == nil {
		return nil, model.NotFoundError("download task %s not found", id)
	}
	return task, nil
}

// List returns recent tasks, newest first. limit is clamped to [1, 50].
func (m *Manager) List(ctx context.Context, limit int) ([]*model.DownloadTask, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	tasks, err := m.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, model.WrapError(model.KindIO, "list tasks", err)
	}
	return tasks, nil
}

// ArtifactPath returns the absolute path of a completed task's file.
func (m *Manager) ArtifactPath(task *model.DownloadTask) string {
	return filepath.Join(m.mediaDir, filepath.Base(task.Filename))
}

func (m *Manager) runWorker(ctx context.Context) {
	for id := range m.queue {
		if ctx.Err() != nil {
			m.abandon(id)
			continue
		}
		m.process(ctx, id)
	}
}

// abandon fails a task that was still queued at shutdown.
func (m *Manager) abandon(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	task, err := m.store.GetByID(ctx, id)
	if err != nil || task == nil {
		return
	}
	if task.Fail("server shutting down") {
		m.save(ctx, task)
	}
}

func (m *Manager) process(parent context.Context, id string) {
	task, err := m.store.GetByID(parent, id)
	if err != nil || task == nil {
		logger.Error("load queued task", logger.String("taskId", id), logger.ErrorField(err))
		return
	}

	ctx, cancel := context.WithTimeout(parent, m.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("download job panicked", logger.String("taskId", id), logger.Any("panic", r))
			m.fail(ctx, task, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := task.Transition(model.TaskStatusDownloading); err != nil {
		logger.Warn("skipping task", logger.String("taskId", id), logger.ErrorField(err))
		return
	}
	m.save(ctx, task)

	start := m.now()
	meta, err := m.extract(ctx, task)
	if err != nil {
		m.fail(ctx, task, err)
		return
	}

	if err := m.complete(ctx, task, meta); err != nil {
		m.fail(ctx, task, err)
		return
	}

	logger.Info("download completed",
		logger.String("taskId", task.ID),
		logger.String("file", task.Filename),
		logger.Duration("took", m.now().Sub(start)))

	if m.archiver != nil {
		if err := m.archiver.Archive(ctx, m.ArtifactPath(task), task.Filename); err != nil {
			logger.Warn("archive artifact", logger.String("taskId", task.ID), logger.ErrorField(err))
		}
	}
}

// extract runs the extractor and applies its events in order.
func (m *Manager) extract(ctx context.Context, task *model.DownloadTask) (*Metadata, error) {
	events := make(chan Event, 16)
	type outcome struct {
		meta *Metadata
		err  error
	}
	result := make(chan outcome, 1)

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				result <- outcome{err: fmt.Errorf("extractor panicked: %v", r)}
			}
		}()
		meta, err := m.extractor.Extract(ctx, ExtractRequest{URL: task.URL, OutputDir: m.mediaDir}, events)
		result <- outcome{meta: meta, err: err}
	}()

	for ev := range events {
		if ApplyEvent(task, ev) {
			m.save(ctx, task)
		}
	}

	out := <-result
	if out.err != nil {
		return nil, out.err
	}
	if out.meta == nil {
		return nil, model.NewError(model.KindEngine, "could not extract video info")
	}
	return out.meta, nil
}

func (m *Manager) complete(ctx context.Context, task *model.DownloadTask, meta *Metadata) error {
	filename, err := ResolveArtifact(m.mediaDir, meta, artifactExt)
	if err != nil {
		return err
	}

	if task.Status == model.TaskStatusDownloading {
		if err := task.Transition(model.TaskStatusProcessing); err != nil {
			return err
		}
		task.SetProgress(model.ProgressProcessing)
	}

	uploader := meta.Uploader
	if uploader == "" {
		uploader = meta.Channel
	}
	if err := task.Complete(meta.Title, uploader, filename, m.now()); err != nil {
		return err
	}
	m.save(ctx, task)
	return nil
}

func (m *Manager) fail(ctx context.Context, task *model.DownloadTask, err error) {
	msg := errMessage(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, model.ErrTimeout) {
		msg = "download timed out after " + m.jobTimeout.String()
	}
	if !task.Fail(msg) {
		return
	}
	logger.Warn("download failed", logger.String("taskId", task.ID), logger.String("error", task.ErrorMessage))

	// The job context may already be done; the failure must still be recorded.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	m.save(saveCtx, task)
}

func (m *Manager) save(ctx context.Context, task *model.DownloadTask) {
	if err := m.store.Update(ctx, task); err != nil {
		logger.Error("save task", logger.String("taskId", task.ID), logger.ErrorField(err))
		return
	}
	m.publish(ctx, task)
}

func (m *Manager) publish(ctx context.Context, task *model.DownloadTask) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishTask(ctx, task); err != nil {
		logger.Debug("publish task", logger.String("taskId", task.ID), logger.ErrorField(err))
	}
}

// ValidateURL trims raw and accepts only absolute http(s) URLs within the
// length cap.
func ValidateURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", model.ValidationError("url is required")
	}
	if len(u) > model.MaxURLLength {
		return "", model.ValidationError("url longer than %d characters", model.MaxURLLength)
	}
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", model.ValidationError("invalid url %q", u)
	}
	return u, nil
}

func errMessage(err error) string {
	var e *model.Error
	if errors.As(err, &e) && e.Message != "" && e.Err == nil {
		return e.Message
	}
	return err.Error()
}
