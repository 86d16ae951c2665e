package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

const wsWriteWait = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // any origin
	},
}

// ProgressWSHandler pushes task snapshots over a websocket until the task is
// completed or failed, then closes normally.
func (h *APIHandler) ProgressWSHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before reading the snapshot so no update falls in between.
	updates := h.updates(ctx, id)

	task, err := h.downloads.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.String("taskId", id), logger.ErrorField(err))
		return
	}
	defer conn.Close()
	go drain(conn, cancel)

	last := task
	if err := writeSnapshot(conn, task); err != nil {
		return
	}
	for !last.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			if !newer(last, next) {
				continue
			}
			if err := writeSnapshot(conn, next); err != nil {
				return
			}
			last = next
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(last.Status))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

// updates prefers the pub/sub stream and falls back to polling.
func (h *APIHandler) updates(ctx context.Context, id string) <-chan *model.DownloadTask {
	if h.progress != nil {
		ch, err := h.progress.Subscribe(ctx, id)
		if err == nil {
			return ch
		}
		logger.Warn("progress subscribe failed, polling instead", logger.String("taskId", id), logger.ErrorField(err))
	}
	return h.poll(ctx, id)
}

func (h *APIHandler) poll(ctx context.Context, id string) <-chan *model.DownloadTask {
	out := make(chan *model.DownloadTask)
	go func() {
		defer close(out)
		ticker := time.NewTicker(h.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			task, err := h.downloads.Get(ctx, id)
			if err != nil {
				logger.Debug("poll task", logger.String("taskId", id), logger.ErrorField(err))
				continue
			}
			select {
			case out <- task:
			case <-ctx.Done():
				return
			}
			if task.Status.IsTerminal() {
				return
			}
		}
	}()
	return out
}

// drain reads until the client goes away; control frames are handled by the
// library during reads.
func drain(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeSnapshot(conn *websocket.Conn, task *model.DownloadTask) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(task)
}

func statusRank(s model.TaskStatus) int {
	switch s {
	case model.TaskStatusPending:
		return 0
	case model.TaskStatusDownloading:
		return 1
	case model.TaskStatusProcessing:
		return 2
	default:
		return 3
	}
}

// newer reports whether next moves the task forward from prev. Stale or
// repeated snapshots are dropped.
func newer(prev, next *model.DownloadTask) bool {
	if next == nil {
		return false
	}
	pr, nr := statusRank(prev.Status), statusRank(next.Status)
	if nr != pr {
		return nr > pr
	}
	return next.Progress > prev.Progress
}
