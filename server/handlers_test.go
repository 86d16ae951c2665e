package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

// --- Mock implementations for testing ---

type fakeDownloads struct {
	mu        sync.Mutex
	dir       string
	tasks     map[string]*model.DownloadTask
	submitErr error
	// accepted is how many tasks a failing SubmitBatch still returns.
	accepted  int
	lastLimit int
	gets      int
	// sequence, when set, is returned by successive Get calls.
	sequence []*model.DownloadTask
}

func (f *fakeDownloads) SubmitBatch(ctx context.Context, urls []string) ([]*model.DownloadTask, error) {
	out := make([]*model.DownloadTask, 0, len(urls))
	for i, u := range urls {
		out = append(out, model.NewDownloadTask("task-"+string(rune('a'+i)), u, time.Unix(0, 0)))
	}
	if f.submitErr != nil {
		if f.accepted == 0 {
			return nil, f.submitErr
		}
		return out[:f.accepted], f.submitErr
	}
	return out, nil
}

func (f *fakeDownloads) Get(ctx context.Context, id string) (*model.DownloadTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if len(f.sequence) > 0 {
		i := f.gets - 1
		if i >= len(f.sequence) {
			i = len(f.sequence) - 1
		}
		return f.sequence[i].Clone(), nil
	}
	task, ok := f.tasks[id]
	if !ok {
		return nil, model.NotFoundError("download task %s not found", id)
	}
	return task.Clone(), nil
}

func (f *fakeDownloads) List(ctx context.Context, limit int) ([]*model.DownloadTask, error) {
	f.lastLimit = limit
	return []*model.DownloadTask{}, nil
}

func (f *fakeDownloads) ArtifactPath(task *model.DownloadTask) string {
	return filepath.Join(f.dir, filepath.Base(task.Filename))
}

type fakeEdits struct {
	dir     string
	editErr error
	outputs map[string]*model.EditOutput
}

func (f *fakeEdits) Edit(ctx context.Context, req *model.EditRequest) (*model.EditOutput, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &model.EditOutput{
		ID:            "0123456789ab",
		Filename:      model.EditFilename("0123456789ab"),
		Name:          req.OutputName(),
		SegmentsCount: len(req.Segments),
		FileSize:      42,
	}, nil
}

func (f *fakeEdits) Get(ctx context.Context, id string) (*model.EditOutput, error) {
	if out, ok := f.outputs[id]; ok {
		return out, nil
	}
	return nil, model.NotFoundError("edit %s not found", id)
}

func (f *fakeEdits) Open(id string) (string, error) {
	path := filepath.Join(f.dir, model.EditFilename(id))
	if _, err := os.Stat(path); err != nil {
		return "", model.NotFoundError("edit %s not found", id)
	}
	return path, nil
}

type fixture struct {
	downloads *fakeDownloads
	edits     *fakeEdits
	handler   http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	completedAt := time.Unix(100, 0)

	downloads := &fakeDownloads{
		dir: dir,
		tasks: map[string]*model.DownloadTask{
			"done": {
				ID: "done", URL: "https://www.instagram.com/reel/abc/", Status: model.TaskStatusCompleted,
				Title: "Song/Name", Uploader: "artist", Filename: "abc.mp3", Progress: 100, CompletedAt: &completedAt,
			},
			"pending": {ID: "pending", URL: "https://www.instagram.com/reel/def/", Status: model.TaskStatusPending},
			"lost": {
				ID: "lost", URL: "https://www.instagram.com/reel/ghi/", Status: model.TaskStatusCompleted,
				Filename: "ghi.mp3", Progress: 100,
			},
		},
	}
	if err := os.WriteFile(filepath.Join(dir, "abc.mp3"), []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	edits := &fakeEdits{
		dir: dir,
		outputs: map[string]*model.EditOutput{
			"0123456789ab": {ID: "0123456789ab", Filename: "edit_0123456789ab.mp3", Name: "mix", SegmentsCount: 2},
		},
	}
	if err := os.WriteFile(filepath.Join(dir, "edit_0123456789ab.mp3"), []byte("edited"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Server.RateLimit = 0
	if mutate != nil {
		mutate(cfg)
	}
	srv := New(cfg, Deps{Downloads: downloads, Edits: edits})
	srv.api.pollInterval = 10 * time.Millisecond
	return &fixture{downloads: downloads, edits: edits, handler: srv.Handler()}
}

func (f *fixture) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestSubmitDownload(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		submitErr error
		status    int
		kind      string
	}{
		{
			name:   "two urls",
			body:   `{"urls":["https://www.instagram.com/reel/a/","https://www.instagram.com/reel/b/"]}`,
			status: http.StatusCreated,
		},
		{name: "invalid json", body: `{"urls":`, status: http.StatusBadRequest, kind: "validation"},
		{name: "empty body", body: "", status: http.StatusBadRequest, kind: "validation"},
		{
			name:      "rejected by service",
			body:      `{"urls":[]}`,
			submitErr: model.ValidationError("provide at least one URL"),
			status:    http.StatusBadRequest,
			kind:      "validation",
		},
		{
			name:      "queue full",
			body:      `{"urls":["https://www.instagram.com/reel/a/"]}`,
			submitErr: model.NewError(model.KindUnavailable, "download queue is full, try again later"),
			status:    http.StatusServiceUnavailable,
			kind:      "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.downloads.submitErr = tt.submitErr

			rec := f.do(http.MethodPost, "/api/download/", tt.body, "Content-Type", "application/json")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.kind != "" {
				if got := decodeError(t, rec).Kind; got != tt.kind {
					t.Errorf("kind = %q, want %q", got, tt.kind)
				}
				return
			}

			var tasks []model.DownloadTask
			if err := json.Unmarshal(rec.Body.Bytes(), &tasks); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(tasks) != 2 || tasks[0].Status != model.TaskStatusPending {
				t.Errorf("unexpected tasks: %+v", tasks)
			}
		})
	}
}

func TestSubmitDownloadPartialBatch(t *testing.T) {
	f := newFixture(t, nil)
	f.downloads.submitErr = model.NewError(model.KindUnavailable, "download queue is full, try again later")
	f.downloads.accepted = 2

	body := `{"urls":["https://www.instagram.com/reel/a/","https://www.instagram.com/reel/b/","https://www.instagram.com/reel/c/"]}`
	rec := f.do(http.MethodPost, "/api/download", body, "Content-Type", "application/json")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", rec.Code, rec.Body.String())
	}

	resp := decodeError(t, rec)
	if resp.Kind != "unavailable" {
		t.Errorf("kind = %q, want unavailable", resp.Kind)
	}
	if len(resp.Tasks) != 2 || resp.Tasks[0].ID != "task-a" || resp.Tasks[1].URL != "https://www.instagram.com/reel/b/" {
		t.Errorf("accepted tasks missing from error body: %+v", resp.Tasks)
	}
}

func TestGetDownload(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/download/done", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var task model.DownloadTask
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatal(err)
	}
	if task.ID != "done" || task.Progress != 100 {
		t.Errorf("unexpected task %+v", task)
	}

	rec = f.do(http.MethodGet, "/api/download/missing/", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Kind != "not_found" || resp.Segment != nil {
		t.Errorf("unexpected error body %+v", resp)
	}
}

func TestDownloadFile(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		headers     []string
		status      int
		disposition string
		body        string
	}{
		{
			name:        "attachment",
			target:      "/api/download/done/file/",
			status:      http.StatusOK,
			disposition: `attachment; filename="artist - Song_Name.mp3"`,
			body:        "0123456789",
		},
		{
			name:        "stream inline",
			target:      "/api/download/done/file?stream=1",
			status:      http.StatusOK,
			disposition: `inline; filename="artist - Song_Name.mp3"`,
			body:        "0123456789",
		},
		{
			name:    "range",
			target:  "/api/download/done/file",
			headers: []string{"Range", "bytes=2-5"},
			status:  http.StatusPartialContent,
			body:    "2345",
		},
		{name: "not ready", target: "/api/download/pending/file", status: http.StatusBadRequest},
		{name: "missing on disk", target: "/api/download/lost/file", status: http.StatusNotFound},
		{name: "unknown task", target: "/api/download/nope/file", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(http.MethodGet, tt.target, "", tt.headers...)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.body != "" && rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
			if tt.disposition != "" {
				if got := rec.Header().Get("Content-Disposition"); got != tt.disposition {
					t.Errorf("Content-Disposition = %q, want %q", got, tt.disposition)
				}
				if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
					t.Errorf("Content-Type = %q", got)
				}
			}
		})
	}
}

func TestNotReadyDetail(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/download/pending/file", "")
	resp := decodeError(t, rec)
	if resp.Detail != "File not ready yet." || resp.Kind != "not_ready" {
		t.Errorf("unexpected error body %+v", resp)
	}
}

func TestListDownloads(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
		limit  int
	}{
		{name: "default", target: "/api/downloads", status: http.StatusOK, limit: 0},
		{name: "explicit", target: "/api/downloads/?limit=5", status: http.StatusOK, limit: 5},
		{name: "not a number", target: "/api/downloads?limit=abc", status: http.StatusBadRequest, limit: -1},
		{name: "zero", target: "/api/downloads?limit=0", status: http.StatusBadRequest, limit: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.downloads.lastLimit = -1
			rec := f.do(http.MethodGet, tt.target, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if f.downloads.lastLimit != tt.limit {
				t.Errorf("limit passed = %d, want %d", f.downloads.lastLimit, tt.limit)
			}
		})
	}
}

func TestCreateEdit(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		editErr error
		status  int
		kind    string
		segment *int
	}{
		{
			name:   "ok",
			body:   `{"segments":[{"task_id":"a","start":0,"end":3},{"task_id":"b","start":1.5,"end":4}],"name":" mix "}`,
			status: http.StatusCreated,
		},
		{
			name:    "bad segment",
			body:    `{"segments":[{"task_id":"a","start":0,"end":3},{"task_id":"b","start":5,"end":4}]}`,
			status:  http.StatusBadRequest,
			kind:    "validation",
			segment: intPtr(1),
		},
		{
			name:    "cut timeout",
			body:    `{"segments":[{"task_id":"a","start":0,"end":3}]}`,
			editErr: model.NewError(model.KindTimeout, "cut timed out at segment 0").WithSegment(0),
			status:  http.StatusGatewayTimeout,
			kind:    "timeout",
			segment: intPtr(0),
		},
		{
			name:    "merge failure",
			body:    `{"segments":[{"task_id":"a","start":0,"end":3}]}`,
			editErr: model.NewError(model.KindEngine, "merge failed"),
			status:  http.StatusInternalServerError,
			kind:    "engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.edits.editErr = tt.editErr

			rec := f.do(http.MethodPost, "/api/edit/", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.kind == "" {
				var resp map[string]interface{}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				if resp["download_url"] != "/api/edit/0123456789ab/file/" ||
					resp["stream_url"] != "/api/edit/0123456789ab/file/?stream=1" ||
					resp["name"] != "mix" || resp["segments_count"] != float64(2) {
					t.Errorf("unexpected edit response %v", resp)
				}
				return
			}

			resp := decodeError(t, rec)
			if resp.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", resp.Kind, tt.kind)
			}
			switch {
			case tt.segment == nil && resp.Segment != nil:
				t.Errorf("segment = %d, want none", *resp.Segment)
			case tt.segment != nil && (resp.Segment == nil || *resp.Segment != *tt.segment):
				t.Errorf("segment = %v, want %d", resp.Segment, *tt.segment)
			}
		})
	}
}

func TestEditFileAndMetadata(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/edit/0123456789ab/file/?stream=1", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "edited" {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != "inline; filename=edit_0123456789ab.mp3" {
		t.Errorf("Content-Disposition = %q", got)
	}

	rec = f.do(http.MethodGet, "/api/edit/0123456789ab", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"segments_count":2`) {
		t.Errorf("metadata status = %d body = %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(http.MethodGet, "/api/edit/ffffffffffff/file", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing edit status = %d, want 404", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodOptions, "/api/edit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Range") {
		t.Errorf("Range not allowed: %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Server.RateLimit = 0.001
		cfg.Server.RateBurst = 1
	})
	body := `{"urls":["https://www.instagram.com/reel/a/"]}`

	if rec := f.do(http.MethodPost, "/api/download", body); rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/download", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if got := decodeError(t, rec).Kind; got != kindRateLimited {
		t.Errorf("kind = %q", got)
	}
	// GETs are not limited.
	if rec := f.do(http.MethodGet, "/api/download/done", ""); rec.Code != http.StatusOK {
		t.Errorf("GET status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		task model.DownloadTask
		want string
	}{
		{name: "uploader and title", task: model.DownloadTask{Title: "Song", Uploader: "me", Filename: "x.mp3"}, want: "me - Song.mp3"},
		{name: "title only", task: model.DownloadTask{Title: "Song", Filename: "x.mp3"}, want: "Song.mp3"},
		{name: "no title", task: model.DownloadTask{Uploader: "me", Filename: "x.mp3"}, want: "x.mp3"},
		{name: "separators", task: model.DownloadTask{Title: `a/b\c`, Uploader: "d/e"}, want: "d_e - a_b_c.mp3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayName(&tt.task); got != tt.want {
				t.Errorf("displayName = %q, want %q", got, tt.want)
			}
		})
	}
}

func intPtr(i int) *int { return &i }
