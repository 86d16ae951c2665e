package audio

import "context"

// Format is the fixed encode target for every clip and merged output.
type Format struct {
	Codec      string
	Bitrate    string
	SampleRate int
	Channels   int
	Ext        string
}

// DefaultFormat is mp3, 192 kbps, 44.1 kHz stereo.
var DefaultFormat = Format{
	Codec:      "libmp3lame",
	Bitrate:    "192k",
	SampleRate: 44100,
	Channels:   2,
	Ext:        ".mp3",
}

// Processor cuts and concatenates audio in the target format.
type Processor interface {
	// Cut re-encodes [start, start+duration) of src into dst. segment is used
	// only to label errors.
	Cut(ctx context.Context, segment int, src, dst string, start, duration float64) error
	// Concat joins the files listed in the concat descriptor into dst.
	Concat(ctx context.Context, listFile, dst string) error
}
