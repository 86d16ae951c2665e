package download

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odhiambocuttice/instagram-audio-downloader/model"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveArtifact(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		meta    *Metadata
		want    string
		wantErr error
	}{
		{
			name:  "exact id match",
			files: []string{"abc.mp3", "abc.webm"},
			meta:  &Metadata{ID: "abc"},
			want:  "abc.mp3",
		},
		{
			name:  "reported filename with converted extension",
			files: []string{"clip-abc.mp3"},
			meta:  &Metadata{ID: "abc", Filename: "clip-abc.webm"},
			want:  "clip-abc.mp3",
		},
		{
			name:  "scan skips partial files",
			files: []string{"x_abc.mp3.part", "y_abc.m4a"},
			meta:  &Metadata{ID: "abc"},
			want:  "y_abc.m4a",
		},
		{
			name:  "scan is sorted",
			files: []string{"z_abc.m4a", "a_abc.ogg"},
			meta:  &Metadata{ID: "abc"},
			want:  "a_abc.ogg",
		},
		{
			name:  "reported path outside dir is ignored",
			files: []string{"abc_real.m4a"},
			meta:  &Metadata{ID: "abc", Filename: "/etc/passwd"},
			want:  "abc_real.m4a",
		},
		{
			name:    "nothing found",
			files:   []string{"other.mp3", "abc.mp3.part"},
			meta:    &Metadata{ID: "abc"},
			wantErr: model.ErrNotFound,
		},
		{
			name:    "no id",
			meta:    &Metadata{},
			wantErr: model.ErrEngine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				touch(t, dir, f)
			}

			got, err := ResolveArtifact(dir, tt.meta, ".mp3")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveArtifact() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveArtifact() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveArtifact() = %q, want %q", got, tt.want)
			}
		})
	}
}
