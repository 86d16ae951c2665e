package audio

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

// mockRunner implements CommandRunner for testing
type mockRunner struct {
	result *Result
	err    error
	calls  [][]string
}

func (m *mockRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*Result, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &Result{}, nil
}

func TestFFmpegProcessor_CutArgs(t *testing.T) {
	p := NewFFmpegProcessor()
	got := p.CutArgs("/media/a.mp3", "/media/edits/clip_1.mp3", 10, 8.3)
	want := []string{
		"-y", "-i", "/media/a.mp3",
		"-ss", "10", "-t", "8.3",
		"-acodec", "libmp3lame", "-ab", "192k", "-ar", "44100", "-ac", "2",
		"/media/edits/clip_1.mp3",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CutArgs() = %v\nwant %v", got, want)
	}
}

func TestFFmpegProcessor_ConcatArgs(t *testing.T) {
	p := NewFFmpegProcessor()
	got := p.ConcatArgs("list.txt", "out.mp3")
	want := []string{
		"-y", "-f", "concat", "-safe", "0", "-i", "list.txt",
		"-acodec", "libmp3lame", "-ab", "192k", "-ar", "44100", "-ac", "2",
		"out.mp3",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConcatArgs() = %v\nwant %v", got, want)
	}
}

func TestFFmpegProcessor_Cut(t *testing.T) {
	tests := []struct {
		name      string
		runner    *mockRunner
		wantKind  model.ErrorKind
		wantErr   bool
		errSubstr string
	}{
		{
			name:   "success",
			runner: &mockRunner{},
		},
		{
			name:      "non-zero exit carries stderr tail",
			runner:    &mockRunner{result: &Result{ExitCode: 1, Stderr: strings.Repeat("x", 500) + "Invalid data"}},
			wantErr:   true,
			wantKind:  model.KindEngine,
			errSubstr: "Invalid data",
		},
		{
			name:      "timeout",
			runner:    &mockRunner{err: model.NewError(model.KindTimeout, "ffmpeg timed out")},
			wantErr:   true,
			wantKind:  model.KindTimeout,
			errSubstr: "segment 2",
		},
		{
			name:     "start failure",
			runner:   &mockRunner{err: model.WrapError(model.KindEngine, "start ffmpeg", errors.New("not found"))},
			wantErr:  true,
			wantKind: model.KindEngine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewFFmpegProcessor(WithFFmpegPath("/usr/bin/ffmpeg"), WithCommandRunner(tt.runner))
			err := p.Cut(context.Background(), 2, "src.mp3", "dst.mp3", 0, 5)

			if len(tt.runner.calls) != 1 || tt.runner.calls[0][0] != "/usr/bin/ffmpeg" {
				t.Fatalf("expected one call to /usr/bin/ffmpeg, got %v", tt.runner.calls)
			}
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Cut() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Cut() expected error")
			}
			if model.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %s, want %s", model.KindOf(err), tt.wantKind)
			}
			if model.SegmentOf(err) != 2 {
				t.Errorf("segment = %d, want 2", model.SegmentOf(err))
			}
			if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errSubstr)
			}
			if len(err.Error()) > 400 {
				t.Errorf("error message not trimmed: %d chars", len(err.Error()))
			}
		})
	}
}

func TestFFmpegProcessor_Concat(t *testing.T) {
	runner := &mockRunner{result: &Result{ExitCode: 1, Stderr: "concat error"}}
	p := NewFFmpegProcessor(WithCommandRunner(runner))

	err := p.Concat(context.Background(), "list.txt", "out.mp3")
	if !errors.Is(err, model.ErrEngine) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if !strings.Contains(err.Error(), "concat error") {
		t.Errorf("error %q does not carry stderr", err.Error())
	}
}

func TestFFmpegProcessor_VerifyInstalled(t *testing.T) {
	ok := NewFFmpegProcessor(WithCommandRunner(&mockRunner{}))
	if err := ok.VerifyInstalled(context.Background()); err != nil {
		t.Errorf("VerifyInstalled() unexpected error: %v", err)
	}

	missing := NewFFmpegProcessor(WithCommandRunner(&mockRunner{err: errors.New("exec: not found")}))
	if err := missing.VerifyInstalled(context.Background()); err == nil {
		t.Error("VerifyInstalled() expected error")
	}
}
