package cmd

import (
	"errors"
	"reflect"
	"testing"

	"github.com/AlecAivazis/survey/v2"
)

// scriptedAsk answers survey prompts from answers in order and records the
// prompt messages it saw.
func scriptedAsk(t *testing.T, answers []string, messages *[]string) func(survey.Prompt, interface{}, ...survey.AskOpt) error {
	t.Helper()
	return func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error {
		input, ok := p.(*survey.Input)
		if !ok {
			t.Fatalf("unexpected prompt type %T", p)
		}
		*messages = append(*messages, input.Message)
		if len(answers) == 0 {
			return errors.New("interrupt")
		}
		*(response.(*string)) = answers[0]
		answers = answers[1:]
		return nil
	}
}

func withAsk(t *testing.T, ask func(survey.Prompt, interface{}, ...survey.AskOpt) error) {
	t.Helper()
	orig := askOne
	askOne = ask
	t.Cleanup(func() { askOne = orig })
}

func TestPromptURLs(t *testing.T) {
	tests := []struct {
		name    string
		answers []string
		want    []string
		wantErr bool
	}{
		{
			name:    "several urls until blank",
			answers: []string{"https://www.instagram.com/reel/a/", " https://www.instagram.com/reel/b/ ", ""},
			want:    []string{"https://www.instagram.com/reel/a/", "https://www.instagram.com/reel/b/"},
		},
		{
			name:    "blank first answer asks again",
			answers: []string{"", "https://www.instagram.com/reel/a/", ""},
			want:    []string{"https://www.instagram.com/reel/a/"},
		},
		{
			name:    "interrupted",
			answers: []string{"https://www.instagram.com/reel/a/"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var messages []string
			withAsk(t, scriptedAsk(t, tt.answers, &messages))

			got, err := promptURLs()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("promptURLs() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("promptURLs() = %v, want %v", got, tt.want)
			}
			if len(messages) != len(tt.answers) {
				t.Errorf("asked %d times, want %d", len(messages), len(tt.answers))
			}
		})
	}
}

func TestPromptOutputDir(t *testing.T) {
	tests := []struct {
		answer string
		want   string
	}{
		{"", "./media"},
		{"  /tmp/reels ", "/tmp/reels"},
	}
	for _, tt := range tests {
		var messages []string
		withAsk(t, scriptedAsk(t, []string{tt.answer}, &messages))

		got, err := promptOutputDir("./media")
		if err != nil {
			t.Fatalf("promptOutputDir() unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("promptOutputDir() with %q = %q, want %q", tt.answer, got, tt.want)
		}
	}
}

func TestDownloadOutputFlag(t *testing.T) {
	f := downloadCmd.Flags().Lookup("output")
	if f == nil || f.Shorthand != "o" {
		t.Fatal("download command has no --output/-o flag")
	}
}
