package edit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/core/audio"
	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

const (
	clipPrefix   = "clip_"
	concatPrefix = "concat_"
	idLength     = 12
)

// TaskLookup reads download tasks. GetByID returns nil, nil when missing.
type TaskLookup interface {
	GetByID(ctx context.Context, id string) (*model.DownloadTask, error)
}

// Recorder persists produced edits. GetByID returns nil, nil when missing.
type Recorder interface {
	Create(ctx context.Context, out *model.EditOutput) error
	GetByID(ctx context.Context, id string) (*model.EditOutput, error)
}

// Archiver copies a finished artifact to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, localPath, objectName string) error
}

// Orchestrator cuts segments out of completed downloads and merges them.
// Edits run synchronously for their caller and share nothing but read access
// to task records, so any number may run at once.
type Orchestrator struct {
	mediaDir  string
	editsDir  string
	ext       string
	tasks     TaskLookup
	processor audio.Processor
	recorder  Recorder
	archiver  Archiver
	now       func() time.Time
	newID     func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArchiver archives every produced edit.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator writing into cfg's edits dir.
func NewOrchestrator(cfg *config.Config, tasks TaskLookup, processor audio.Processor, recorder Recorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		mediaDir:  cfg.Media.Root,
		editsDir:  cfg.Media.EditsDir(),
		ext:       audio.DefaultFormat.Ext,
		tasks:     tasks,
		processor: processor,
		recorder:  recorder,
		now:       time.Now,
		newID:     randomHex,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EditsDir is where outputs and temp clips are written.
func (o *Orchestrator) EditsDir() string {
	return o.editsDir
}

// workspace tracks every file an edit creates so they can be removed on
// every exit path.
type workspace struct {
	clips    []string
	listFile string
	output   string
	keep     map[string]bool
}

func (w *workspace) cleanup() {
	paths := append([]string{w.listFile, w.output}, w.clips...)
	for _, p := range paths {
		if p == "" || w.keep[p] {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("remove temp file", logger.String("path", p), logger.ErrorField(err))
		}
	}
}

// Edit validates req, cuts each segment and merges the clips into one
// artifact. Temp files never outlive the call.
func (o *Orchestrator) Edit(ctx context.Context, req *model.EditRequest) (*model.EditOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(o.editsDir, 0755); err != nil {
		return nil, model.WrapError(model.KindIO, "create edits dir", err)
	}

	id := o.newID()
	output := filepath.Join(o.editsDir, model.EditFilename(id))
	ws := &workspace{output: output, keep: map[string]bool{}}
	success := false
	defer func() {
		if success {
			ws.keep[output] = true
		}
		ws.cleanup()
	}()

	start := o.now()
	for i, seg := range req.Segments {
		src, err := o.sourcePath(ctx, i, seg.TaskID)
		if err != nil {
			return nil, err
		}

		clip := filepath.Join(o.editsDir, clipPrefix+randomHex()[:8]+o.ext)
		ws.clips = append(ws.clips, clip)
		if err := o.processor.Cut(ctx, i, src, clip, *seg.Start, seg.Duration()); err != nil {
			return nil, err
		}
	}

	if len(ws.clips) == 1 {
		if err := os.Rename(ws.clips[0], output); err != nil {
			return nil, model.WrapError(model.KindIO, "rename clip", err)
		}
	} else {
		listFile, err := writeConcatList(o.editsDir, ws.clips)
		ws.listFile = listFile
		if err != nil {
			return nil, err
		}
		if err := o.processor.Concat(ctx, listFile, output); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(output)
	if err != nil {
		return nil, model.WrapError(model.KindNotFound, "stat merged output", err)
	}

	out := &model.EditOutput{
		ID:            id,
		Filename:      filepath.Base(output),
		Name:          req.OutputName(),
		SegmentsCount: len(req.Segments),
		FileSize:      info.Size(),
		CreatedAt:     o.now(),
	}
	if o.recorder != nil {
		if err := o.recorder.Create(ctx, out); err != nil {
			return nil, model.WrapError(model.KindIO, "record edit", err)
		}
	}
	success = true

	logger.Info("edit created",
		logger.String("editId", id),
		logger.Int("segments", out.SegmentsCount),
		logger.Int64("size", out.FileSize),
		logger.Duration("took", o.now().Sub(start)))

	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, output, "edits/"+out.Filename); err != nil {
			logger.Warn("archive edit", logger.String("editId", id), logger.ErrorField(err))
		}
	}
	return out, nil
}

func (o *Orchestrator) sourcePath(ctx context.Context, i int, taskID string) (string, error) {
	notFound := model.NotFoundError("source for segment %d not found", i).WithSegment(i)

	task, err := o.tasks.GetByID(ctx, strings.TrimSpace(taskID))
	if err != nil {
		return "", model.WrapError(model.KindIO, fmt.Sprintf("load source for segment %d", i), err)
	}
	if task == nil || task.Status != model.TaskStatusCompleted || task.Filename == "" {
		return "", notFound
	}

	src := filepath.Join(o.mediaDir, filepath.Base(task.Filename))
	if info, err := os.Stat(src); err != nil || !info.Mode().IsRegular() {
		return "", notFound
	}
	return src, nil
}

// writeConcatList writes an ffmpeg concat descriptor listing clips in order.
func writeConcatList(dir string, clips []string) (string, error) {
	f, err := os.CreateTemp(dir, concatPrefix+"*.txt")
	if err != nil {
		return "", model.WrapError(model.KindIO, "create concat list", err)
	}
	name := f.Name()

	var b strings.Builder
	for _, c := range clips {
		abs, err := filepath.Abs(c)
		if err != nil {
			abs = c
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return name, model.WrapError(model.KindIO, "write concat list", err)
	}
	if err := f.Close(); err != nil {
		return name, model.WrapError(model.KindIO, "close concat list", err)
	}
	return name, nil
}

// Get returns the recorded metadata for an edit.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.EditOutput, error) {
	if !validID(id) {
		return nil, model.NotFoundError("edit %s not found", id)
	}
	if o.recorder == nil {
		return nil, model.NotFoundError("edit %s not found", id)
	}
	out, err := o.recorder.GetByID(ctx, id)
	if err != nil {
		return nil, model.WrapError(model.KindIO, "get edit", err)
	}
	if out == nil {
		return nil, model.NotFoundError("edit %s not found", id)
	}
	return out, nil
}

// Open resolves the artifact path of a produced edit.
func (o *Orchestrator) Open(id string) (string, error) {
	if !validID(id) {
		return "", model.NotFoundError("edit %s not found", id)
	}
	path := filepath.Join(o.editsDir, model.EditFilename(id))
	if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
		return "", model.NotFoundError("edit %s not found", id)
	}
	return path, nil
}

func validID(id string) bool {
	if len(id) != idLength {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

func randomHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:idLength]
}
