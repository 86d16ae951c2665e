package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

const (
	maxBodyBytes    = 1 << 20
	kindRateLimited = "rate_limited"
)

// DownloadService is the part of the download manager the API uses.
type DownloadService interface {
	SubmitBatch(ctx context.Context, urls []string) ([]*model.DownloadTask, error)
	Get(ctx context.Context, id string) (*model.DownloadTask, error)
	List(ctx context.Context, limit int) ([]*model.DownloadTask, error)
	ArtifactPath(task *model.DownloadTask) string
}

// EditService is the part of the edit orchestrator the API uses.
type EditService interface {
	Edit(ctx context.Context, req *model.EditRequest) (*model.EditOutput, error)
	Get(ctx context.Context, id string) (*model.EditOutput, error)
	Open(id string) (string, error)
}

// ProgressSubscriber streams task snapshots as they are saved.
type ProgressSubscriber interface {
	Subscribe(ctx context.Context, taskID string) (<-chan *model.DownloadTask, error)
}

// APIHandler serves the download and edit API.
type APIHandler struct {
	downloads    DownloadService
	edits        EditService
	progress     ProgressSubscriber
	pollInterval time.Duration
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(downloads DownloadService, edits EditService, progress ProgressSubscriber) *APIHandler {
	return &APIHandler{
		downloads:    downloads,
		edits:        edits,
		progress:     progress,
		pollInterval: 500 * time.Millisecond,
	}
}

type submitRequest struct {
	URLs []string `json:"urls"`
}

type errorResponse struct {
	Detail  string `json:"detail"`
	Kind    string `json:"kind"`
	Segment *int   `json:"segment,omitempty"`
	// Tasks lists what a partially accepted batch did create.
	Tasks []*model.DownloadTask `json:"tasks,omitempty"`
}

type editResponse struct {
	*model.EditOutput
	DownloadURL string `json:"download_url"`
	StreamURL   string `json:"stream_url"`
}

func newEditResponse(out *model.EditOutput) editResponse {
	fileURL := "/api/edit/" + out.ID + "/file/"
	return editResponse{
		EditOutput:  out,
		DownloadURL: fileURL,
		StreamURL:   fileURL + "?stream=1",
	}
}

// SubmitDownloadHandler queues one task per URL and returns their snapshots.
func (h *APIHandler) SubmitDownloadHandler(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	tasks, err := h.downloads.SubmitBatch(r.Context(), req.URLs)
	if err != nil {
		status, resp := newErrorResponse(err)
		resp.Tasks = tasks
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusCreated, tasks)
}

func (h *APIHandler) GetDownloadHandler(w http.ResponseWriter, r *http.Request) {
	task, err := h.downloads.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DownloadFileHandler serves a completed task's audio with range support.
func (h *APIHandler) DownloadFileHandler(w http.ResponseWriter, r *http.Request) {
	task, err := h.downloads.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if task.Status != model.TaskStatusCompleted || task.Filename == "" {
		writeError(w, model.NewError(model.KindNotReady, "File not ready yet."))
		return
	}
	serveArtifact(w, r, h.downloads.ArtifactPath(task), displayName(task))
}

// ListDownloadsHandler returns recent tasks, newest first.
func (h *APIHandler) ListDownloadsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, model.ValidationError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	tasks, err := h.downloads.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CreateEditHandler runs an edit synchronously and returns its metadata.
func (h *APIHandler) CreateEditHandler(w http.ResponseWriter, r *http.Request) {
	var req model.EditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.edits.Edit(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEditResponse(out))
}

func (h *APIHandler) GetEditHandler(w http.ResponseWriter, r *http.Request) {
	out, err := h.edits.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEditResponse(out))
}

func (h *APIHandler) EditFileHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	path, err := h.edits.Open(id)
	if err != nil {
		writeError(w, err)
		return
	}
	serveArtifact(w, r, path, model.EditFilename(id))
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// displayName is "<uploader> - <title>.mp3" when a title is known, else the
// stored filename. Path separators are replaced so the name stays flat.
func displayName(task *model.DownloadTask) string {
	name := task.Filename
	if title := strings.TrimSpace(task.Title); title != "" {
		name = title + ".mp3"
		if uploader := strings.TrimSpace(task.Uploader); uploader != "" {
			name = uploader + " - " + name
		}
	}
	return strings.NewReplacer("/", "_", `\`, "_").Replace(name)
}

func contentDisposition(r *http.Request, name string) string {
	disposition := "attachment"
	if r.URL.Query().Get("stream") == "1" {
		disposition = "inline"
	}
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": name}); v != "" {
		return v
	}
	return disposition
}

func serveArtifact(w http.ResponseWriter, r *http.Request, path, name string) {
	f, err := os.Open(path)
	if err != nil {
		writeError(w, model.NotFoundError("File not found on disk."))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, model.NotFoundError("File not found on disk."))
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", contentDisposition(r, name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return model.ValidationError("request body is empty")
		}
		return model.ValidationError("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response", logger.ErrorField(err))
	}
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation, model.KindNotReady:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindTimeout:
		return http.StatusGatewayTimeout
	case model.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newErrorResponse(err error) (int, errorResponse) {
	kind := model.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", logger.String("kind", string(kind)), logger.ErrorField(err))
	}

	resp := errorResponse{Detail: err.Error(), Kind: string(kind)}
	if seg := model.SegmentOf(err); seg != model.NoSegment {
		resp.Segment = &seg
	}
	return status, resp
}

func writeError(w http.ResponseWriter, err error) {
	status, resp := newErrorResponse(err)
	writeJSON(w, status, resp)
}
