package download

import "github.com/odhiambocuttice/instagram-audio-downloader/model"

// EventKind is the kind of progress notification emitted by an extractor.
type EventKind string

const (
	EventDownloading EventKind = "downloading"
	EventFinished    EventKind = "finished"
)

// Event is one progress notification. Byte counts are zero when unknown.
type Event struct {
	Kind               EventKind
	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
}

// DownloadPercent maps a byte count to the 0-80 download band. The second
// result is false when there is no usable total.
func DownloadPercent(downloaded, total, estimate int64) (int, bool) {
	if total <= 0 {
		total = estimate
	}
	if total <= 0 {
		return 0, false
	}
	if downloaded < 0 {
		downloaded = 0
	}
	pct := int(downloaded * int64(model.ProgressDownloadCeiling) / total)
	if pct > model.ProgressDownloadCeiling {
		pct = model.ProgressDownloadCeiling
	}
	return pct, true
}

// ApplyEvent folds ev into task and reports whether anything changed.
// Downloading events never change status; a finished event moves a
// downloading task to processing at 85%.
func ApplyEvent(task *model.DownloadTask, ev Event) bool {
	switch ev.Kind {
	case EventDownloading:
		pct, ok := DownloadPercent(ev.DownloadedBytes, ev.TotalBytes, ev.TotalBytesEstimate)
		if !ok {
			return false
		}
		return task.SetProgress(pct)
	case EventFinished:
		changed := false
		if task.Status == model.TaskStatusDownloading {
			if err := task.Transition(model.TaskStatusProcessing); err == nil {
				changed = true
			}
		}
		if task.SetProgress(model.ProgressProcessing) {
			changed = true
		}
		return changed
	}
	return false
}
