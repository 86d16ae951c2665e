//go:build integration

package steps

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/core/edit"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
	"github.com/odhiambocuttice/instagram-audio-downloader/repository"
)

type cutCall struct {
	segment  int
	start    float64
	duration float64
}

// recordingProcessor writes placeholder files instead of running ffmpeg.
type recordingProcessor struct {
	mu        sync.Mutex
	cuts      []cutCall
	concats   int
	timeoutAt int
}

func (p *recordingProcessor) Cut(ctx context.Context, segment int, src, dst string, start, duration float64) error {
	p.mu.Lock()
	p.cuts = append(p.cuts, cutCall{segment: segment, start: start, duration: duration})
	p.mu.Unlock()

	if err := os.WriteFile(dst, []byte("clip"), 0644); err != nil {
		return err
	}
	if segment == p.timeoutAt {
		return model.NewError(model.KindTimeout, "cut timed out at segment %d", segment).WithSegment(segment)
	}
	return nil
}

func (p *recordingProcessor) Concat(ctx context.Context, listFile, dst string) error {
	p.mu.Lock()
	p.concats++
	p.mu.Unlock()
	return os.WriteFile(dst, []byte("merged"), 0644)
}

type mapRecorder struct {
	mu      sync.Mutex
	outputs map[string]*model.EditOutput
}

func (r *mapRecorder) Create(ctx context.Context, out *model.EditOutput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[out.ID] = out
	return nil
}

func (r *mapRecorder) GetByID(ctx context.Context, id string) (*model.EditOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs[id], nil
}

type editContext struct {
	dir          string
	tasks        *repository.MemoryTaskRepository
	processor    *recordingProcessor
	orchestrator *edit.Orchestrator
	out          *model.EditOutput
	err          error
}

// SharedEditContext is reset before each scenario via Before hook
var SharedEditContext *editContext

func getEditContext() *editContext {
	return SharedEditContext
}

func InitializeEditScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "reel-edit-*")
		if err != nil {
			return c, err
		}
		cfg := config.Default()
		cfg.Media.Root = dir

		tasks := repository.NewMemoryTaskRepository()
		processor := &recordingProcessor{timeoutAt: -1}
		recorder := &mapRecorder{outputs: map[string]*model.EditOutput{}}
		SharedEditContext = &editContext{
			dir:          dir,
			tasks:        tasks,
			processor:    processor,
			orchestrator: edit.NewOrchestrator(cfg, tasks, processor, recorder),
		}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if e := getEditContext(); e != nil {
			os.RemoveAll(e.dir)
		}
		SharedEditContext = nil
		return c, nil
	})

	ctx.Step(`^a completed download "([^"]*)" with file "([^"]*)"$`, aCompletedDownloadWithFile)
	ctx.Step(`^a pending download "([^"]*)"$`, aPendingDownload)
	ctx.Step(`^cutting segment (\d+) times out$`, cuttingSegmentTimesOut)
	ctx.Step(`^I merge the segments:$`, iMergeTheSegments)
	ctx.Step(`^the edit should succeed with (\d+) segments$`, theEditShouldSucceedWithSegments)
	ctx.Step(`^ffmpeg should have cut:$`, ffmpegShouldHaveCut)
	ctx.Step(`^ffmpeg should not have been called$`, ffmpegShouldNotHaveBeenCalled)
	ctx.Step(`^the edit should fail with a "([^"]*)" error at segment (\d+)$`, theEditShouldFailWithErrorAtSegment)
	ctx.Step(`^no temporary files should remain$`, noTemporaryFilesShouldRemain)
}

func aCompletedDownloadWithFile(id, filename string) error {
	e := getEditContext()
	if err := os.WriteFile(filepath.Join(e.dir, filename), []byte("source"), 0644); err != nil {
		return err
	}
	task := model.NewDownloadTask(id, "https://www.instagram.com/reel/"+id+"/", time.Now())
	task.Status = model.TaskStatusCompleted
	task.Progress = model.ProgressCompleted
	task.Filename = filename
	return e.tasks.Create(context.Background(), task)
}

func aPendingDownload(id string) error {
	e := getEditContext()
	task := model.NewDownloadTask(id, "https://www.instagram.com/reel/"+id+"/", time.Now())
	return e.tasks.Create(context.Background(), task)
}

func cuttingSegmentTimesOut(segment int) error {
	getEditContext().processor.timeoutAt = segment
	return nil
}

func iMergeTheSegments(table *godog.Table) error {
	e := getEditContext()
	req := &model.EditRequest{Name: "feature mix"}
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		start, err := strconv.ParseFloat(row.Cells[1].Value, 64)
		if err != nil {
			return err
		}
		end, err := strconv.ParseFloat(row.Cells[2].Value, 64)
		if err != nil {
			return err
		}
		req.Segments = append(req.Segments, model.Segment{TaskID: row.Cells[0].Value, Start: &start, End: &end})
	}
	e.out, e.err = e.orchestrator.Edit(context.Background(), req)
	return nil
}

func theEditShouldSucceedWithSegments(n int) error {
	e := getEditContext()
	if e.err != nil {
		return fmt.Errorf("unexpected error: %v", e.err)
	}
	if e.out.SegmentsCount != n {
		return fmt.Errorf("expected %d segments, got %d", n, e.out.SegmentsCount)
	}
	if _, err := os.Stat(filepath.Join(e.orchestrator.EditsDir(), e.out.Filename)); err != nil {
		return fmt.Errorf("merged output missing: %v", err)
	}
	return nil
}

func ffmpegShouldHaveCut(table *godog.Table) error {
	e := getEditContext()
	rows := table.Rows[1:]
	if len(e.processor.cuts) != len(rows) {
		return fmt.Errorf("expected %d cuts, got %d", len(rows), len(e.processor.cuts))
	}
	for i, row := range rows {
		seg, _ := strconv.Atoi(row.Cells[0].Value)
		start, _ := strconv.ParseFloat(row.Cells[1].Value, 64)
		duration, _ := strconv.ParseFloat(row.Cells[2].Value, 64)
		got := e.processor.cuts[i]
		if got.segment != seg || math.Abs(got.start-start) > 1e-9 || math.Abs(got.duration-duration) > 1e-9 {
			return fmt.Errorf("cut %d: expected (%d, %v, %v), got (%d, %v, %v)",
				i, seg, start, duration, got.segment, got.start, got.duration)
		}
	}
	return nil
}

func ffmpegShouldNotHaveBeenCalled() error {
	e := getEditContext()
	if len(e.processor.cuts) != 0 || e.processor.concats != 0 {
		return fmt.Errorf("expected no ffmpeg calls, got %d cuts and %d merges", len(e.processor.cuts), e.processor.concats)
	}
	return nil
}

func theEditShouldFailWithErrorAtSegment(kind string, segment int) error {
	e := getEditContext()
	if e.err == nil {
		return fmt.Errorf("expected edit to fail")
	}
	if got := model.KindOf(e.err); string(got) != kind {
		return fmt.Errorf("expected %q error, got %q: %v", kind, got, e.err)
	}
	if got := model.SegmentOf(e.err); got != segment {
		return fmt.Errorf("expected segment %d, got %d", segment, got)
	}
	return nil
}

func noTemporaryFilesShouldRemain() error {
	e := getEditContext()
	entries, err := os.ReadDir(e.orchestrator.EditsDir())
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "clip_") || strings.HasPrefix(name, "concat_") {
			return fmt.Errorf("temporary file left behind: %s", name)
		}
		if e.err != nil && strings.HasPrefix(name, "edit_") {
			return fmt.Errorf("partial output left behind: %s", name)
		}
	}
	return nil
}
