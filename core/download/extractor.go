package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

// Metadata is what the extraction engine reports for a finished download.
type Metadata struct {
	ID       string
	Title    string
	Uploader string
	Channel  string
	// Filename is the path the engine reported for the final artifact, if any.
	Filename string
}

// ExtractRequest names the URL to fetch and the directory to write into.
type ExtractRequest struct {
	URL       string
	OutputDir string
}

// Extractor downloads a URL and transcodes its audio. Progress is sent on
// events; the extractor must not send after Extract returns. The caller owns
// closing events.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest, events chan<- Event) (*Metadata, error)
}

// YtdlpExtractor implements Extractor with yt-dlp.
type YtdlpExtractor struct {
	ytdlpPath      string
	ffmpegPath     string
	audioFormat    string
	audioQuality   string
	progressPeriod time.Duration
}

// YtdlpOption configures a YtdlpExtractor.
type YtdlpOption func(*YtdlpExtractor)

// WithYtdlpPath sets the yt-dlp executable.
func WithYtdlpPath(path string) YtdlpOption {
	return func(e *YtdlpExtractor) {
		e.ytdlpPath = path
	}
}

// WithFFmpegLocation points yt-dlp at a specific ffmpeg binary.
func WithFFmpegLocation(path string) YtdlpOption {
	return func(e *YtdlpExtractor) {
		e.ffmpegPath = path
	}
}

// WithProgressPeriod sets how often yt-dlp progress is sampled.
func WithProgressPeriod(d time.Duration) YtdlpOption {
	return func(e *YtdlpExtractor) {
		if d > 0 {
			e.progressPeriod = d
		}
	}
}

// NewYtdlpExtractor creates an extractor producing mp3 at quality 192.
func NewYtdlpExtractor(opts ...YtdlpOption) *YtdlpExtractor {
	e := &YtdlpExtractor{
		audioFormat:    "mp3",
		audioQuality:   "192",
		progressPeriod: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *YtdlpExtractor) command(outputDir string) *ytdlp.Command {
	dl := ytdlp.New().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat(e.audioFormat).
		AudioQuality(e.audioQuality).
		NoPlaylist().
		ForceOverwrites().
		PrintJSON().
		Output(filepath.Join(outputDir, "%(id)s.%(ext)s"))

	if e.ytdlpPath != "" {
		dl.SetExecutable(e.ytdlpPath)
	}
	if e.ffmpegPath != "" {
		dl.FFmpegLocation(e.ffmpegPath)
	}
	return dl
}

// Extract runs yt-dlp for req.URL and forwards its progress to events.
func (e *YtdlpExtractor) Extract(ctx context.Context, req ExtractRequest, events chan<- Event) (*Metadata, error) {
	dl := e.command(req.OutputDir)

	// yt-dlp may call back after Run returns; stop forwarding at that point.
	var (
		mu      sync.Mutex
		stopped bool
	)
	defer func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
	}()

	dl.ProgressFunc(e.progressPeriod, func(update ytdlp.ProgressUpdate) {
		ev, ok := eventFromUpdate(update)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})

	logger.Debug("starting yt-dlp", logger.String("url", req.URL), logger.String("dir", req.OutputDir))

	res, err := dl.Run(ctx, req.URL)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &model.Error{Kind: model.KindTimeout, Segment: model.NoSegment, Message: "download timed out", Err: err}
		}
		return nil, model.WrapError(model.KindEngine, "yt-dlp", err)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, model.WrapError(model.KindEngine, "read yt-dlp metadata", err)
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, model.NewError(model.KindEngine, "could not extract video info")
	}

	return metadataFromInfo(infos[0]), nil
}

func eventFromUpdate(u ytdlp.ProgressUpdate) (Event, bool) {
	switch u.Status {
	case ytdlp.ProgressStatusDownloading:
		return Event{
			Kind:            EventDownloading,
			DownloadedBytes: int64(u.DownloadedBytes),
			TotalBytes:      int64(u.TotalBytes),
		}, true
	case ytdlp.ProgressStatusFinished:
		return Event{Kind: EventFinished}, true
	}
	return Event{}, false
}

func metadataFromInfo(info *ytdlp.ExtractedInfo) *Metadata {
	return &Metadata{
		ID:       info.ID,
		Title:    deref(info.Title),
		Uploader: deref(info.Uploader),
		Channel:  deref(info.Channel),
		Filename: deref(info.Filename),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Install makes sure a yt-dlp binary is available, downloading one into the
// user cache if needed.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

var _ Extractor = (*YtdlpExtractor)(nil)
