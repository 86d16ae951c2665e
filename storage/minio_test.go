package storage

import "testing"

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.size); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("/media/abc.MP3"); got != "audio/mpeg" {
		t.Errorf("contentType() = %q", got)
	}
	if got := contentType("x.bin"); got != "application/octet-stream" {
		t.Errorf("contentType() = %q", got)
	}
}

func TestArchiver_ObjectName(t *testing.T) {
	a := &Archiver{prefix: "audio"}
	if got := a.ObjectName("edits/edit_0123456789ab.mp3"); got != "audio/edits/edit_0123456789ab.mp3" {
		t.Errorf("ObjectName() = %q", got)
	}
}
