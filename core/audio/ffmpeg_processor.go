package audio

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/odhiambocuttice/instagram-audio-downloader/logger"
	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

// stderrTail is how much ffmpeg stderr is kept in error messages.
const stderrTail = 300

// FFmpegProcessor implements the Processor interface using ffmpeg.
type FFmpegProcessor struct {
	ffmpegPath    string
	runner        CommandRunner
	format        Format
	cutTimeout    time.Duration
	concatTimeout time.Duration
}

// FFmpegOption configures an FFmpegProcessor.
type FFmpegOption func(*FFmpegProcessor)

// WithFFmpegPath sets a custom ffmpeg executable path.
func WithFFmpegPath(path string) FFmpegOption {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffmpegPath = path
		}
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner CommandRunner) FFmpegOption {
	return func(p *FFmpegProcessor) {
		p.runner = runner
	}
}

// WithTimeouts overrides the per-process cut and concat timeouts.
func WithTimeouts(cut, concat time.Duration) FFmpegOption {
	return func(p *FFmpegProcessor) {
		if cut > 0 {
			p.cutTimeout = cut
		}
		if concat > 0 {
			p.concatTimeout = concat
		}
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
func NewFFmpegProcessor(opts ...FFmpegOption) *FFmpegProcessor {
	p := &FFmpegProcessor{
		ffmpegPath:    "ffmpeg",
		runner:        NewExecRunner(),
		format:        DefaultFormat,
		cutTimeout:    60 * time.Second,
		concatTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *FFmpegProcessor) encodeArgs() []string {
	return []string{
		"-acodec", p.format.Codec,
		"-ab", p.format.Bitrate,
		"-ar", strconv.Itoa(p.format.SampleRate),
		"-ac", strconv.Itoa(p.format.Channels),
	}
}

// CutArgs builds the ffmpeg argument list for a cut.
func (p *FFmpegProcessor) CutArgs(src, dst string, start, duration float64) []string {
	args := []string{
		"-y",
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
	}
	args = append(args, p.encodeArgs()...)
	return append(args, dst)
}

// ConcatArgs builds the ffmpeg argument list for a concat.
func (p *FFmpegProcessor) ConcatArgs(listFile, dst string) []string {
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
	}
	args = append(args, p.encodeArgs()...)
	return append(args, dst)
}

// Cut re-encodes one segment of src into dst.
func (p *FFmpegProcessor) Cut(ctx context.Context, segment int, src, dst string, start, duration float64) error {
	res, err := p.runner.Run(ctx, p.cutTimeout, p.ffmpegPath, p.CutArgs(src, dst, start, duration)...)
	if err != nil {
		if model.KindOf(err) == model.KindTimeout {
			return (&model.Error{
				Kind:    model.KindTimeout,
				Message: fmt.Sprintf("cut timed out at segment %d", segment),
				Err:     err,
			}).WithSegment(segment)
		}
		return (&model.Error{
			Kind:    model.KindEngine,
			Message: fmt.Sprintf("cut failed at segment %d", segment),
			Err:     err,
		}).WithSegment(segment)
	}
	if res.ExitCode != 0 {
		logger.Warn("ffmpeg cut failed",
			logger.Int("segment", segment),
			logger.Int("exitCode", res.ExitCode),
			logger.String("src", src))
		return model.NewError(model.KindEngine, "cut failed at segment %d: %s",
			segment, Tail(res.Stderr, stderrTail)).WithSegment(segment)
	}
	logger.Debug("ffmpeg cut done",
		logger.Int("segment", segment),
		logger.String("dst", dst),
		logger.Duration("took", res.Duration))
	return nil
}

// Concat joins the clips listed in listFile into dst.
func (p *FFmpegProcessor) Concat(ctx context.Context, listFile, dst string) error {
	res, err := p.runner.Run(ctx, p.concatTimeout, p.ffmpegPath, p.ConcatArgs(listFile, dst)...)
	if err != nil {
		if model.KindOf(err) == model.KindTimeout {
			return &model.Error{Kind: model.KindTimeout, Segment: model.NoSegment, Message: "merge timed out", Err: err}
		}
		return &model.Error{Kind: model.KindEngine, Segment: model.NoSegment, Message: "merge failed", Err: err}
	}
	if res.ExitCode != 0 {
		logger.Warn("ffmpeg concat failed", logger.Int("exitCode", res.ExitCode))
		return model.NewError(model.KindEngine, "merge failed: %s", Tail(res.Stderr, stderrTail))
	}
	return nil
}

// VerifyInstalled checks that ffmpeg is available.
func (p *FFmpegProcessor) VerifyInstalled(ctx context.Context) error {
	res, err := p.runner.Run(ctx, 10*time.Second, p.ffmpegPath, "-version")
	if err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("ffmpeg -version exited with code %d", res.ExitCode)
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ Processor = (*FFmpegProcessor)(nil)
