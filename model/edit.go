package model

import (
	"strings"
	"time"
)

const (
	// DefaultEditName is used when an edit request carries no output name.
	DefaultEditName   = "edited_mix"
	MaxEditNameLength = 100
	MaxEditSegments   = 50
)

// Segment is a time range cut from a completed download. Start and End are
// pointers so that a missing value can be told apart from zero.
type Segment struct {
	TaskID string   `json:"task_id"`
	Start  *float64 `json:"start"`
	End    *float64 `json:"end"`
}

// Duration returns End-Start. Call only on a validated segment.
func (s Segment) Duration() float64 {
	return *s.End - *s.Start
}

// EditRequest asks for segments to be cut and merged, in order.
type EditRequest struct {
	Segments []Segment `json:"segments"`
	Name     string    `json:"name"`
}

// Validate checks the request before any engine work. Segment errors carry
// the offending index.
func (r *EditRequest) Validate() error {
	if len(r.Segments) == 0 {
		return ValidationError("provide at least one segment")
	}
	if len(r.Segments) > MaxEditSegments {
		return ValidationError("too many segments: %d (max %d)", len(r.Segments), MaxEditSegments)
	}
	for i, seg := range r.Segments {
		if strings.TrimSpace(seg.TaskID) == "" || seg.Start == nil || seg.End == nil {
			return ValidationError("segment %d: must include task_id, start, end", i).WithSegment(i)
		}
		if *seg.Start < 0 {
			return ValidationError("segment %d: start must not be negative", i).WithSegment(i)
		}
		if *seg.End <= *seg.Start {
			return ValidationError("segment %d: end must be greater than start", i).WithSegment(i)
		}
	}
	return nil
}

// OutputName returns the trimmed, capped output name or the default.
func (r *EditRequest) OutputName() string {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return DefaultEditName
	}
	return Truncate(name, MaxEditNameLength)
}

// EditOutput describes one merged artifact. It is written once and never updated.
type EditOutput struct {
	ID            string    `json:"id" gorm:"primaryKey;size:12"`
	Filename      string    `json:"filename" gorm:"size:64;not null"`
	Name          string    `json:"name" gorm:"size:100"`
	SegmentsCount int       `json:"segments_count"`
	FileSize      int64     `json:"file_size"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}

// TableName pins the table name used by gorm.
func (EditOutput) TableName() string {
	return "edit_outputs"
}

// EditFilename derives the artifact name for an edit id.
func EditFilename(id string) string {
	return "edit_" + id + ".mp3"
}
