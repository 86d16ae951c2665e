package edit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/odhiambocuttice/instagram-audio-downloader/config"
)

func TestSweeper_Sweep(t *testing.T) {
	cfg := config.Default()
	cfg.Media.Root = t.TempDir()
	dir := cfg.Media.EditsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-2 * time.Hour)
	files := map[string]bool{ // name -> old
		"clip_aaaa1111.mp3":     true,
		"concat_123.txt":        true,
		"clip_bbbb2222.mp3":     false,
		"edit_0123456789ab.mp3": true,
	}
	for name, isOld := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if isOld {
			if err := os.Chtimes(p, old, old); err != nil {
				t.Fatal(err)
			}
		}
	}

	s := NewSweeper(cfg)
	if n := s.Sweep(); n != 2 {
		t.Errorf("Sweep() removed %d files, want 2", n)
	}

	for name, wantExists := range map[string]bool{
		"clip_aaaa1111.mp3":     false,
		"concat_123.txt":        false,
		"clip_bbbb2222.mp3":     true,
		"edit_0123456789ab.mp3": true,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		if exists := err == nil; exists != wantExists {
			t.Errorf("%s exists = %v, want %v", name, exists, wantExists)
		}
	}
}

func TestSweeper_MissingDir(t *testing.T) {
	cfg := config.Default()
	cfg.Media.Root = filepath.Join(t.TempDir(), "absent")
	if n := NewSweeper(cfg).Sweep(); n != 0 {
		t.Errorf("Sweep() = %d, want 0", n)
	}
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Media.Root = t.TempDir()
	cfg.Edit.SweepSchedule = "not a schedule"
	if err := NewSweeper(cfg).Start(); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
