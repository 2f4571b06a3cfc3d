package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/vmood/internal/emotion"
)

// Analysis is one completed run over a piece of content.
type Analysis struct {
	ID            string          `json:"id"`
	ContentID     string          `json:"content_id"`
	Labels        []emotion.Label `json:"labels"`
	Stride        int             `json:"stride"`
	WindowSize    int             `json:"window_size"`
	Divisor       int             `json:"divisor"`
	FramesSampled int             `json:"frames_sampled"`
	FramesFailed  int             `json:"frames_failed"`
	Segments      []SegmentLog    `json:"segments"`
	DurationMS    int64           `json:"duration_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SegmentLog is the stored outcome of one window.
type SegmentLog struct {
	Index        int             `json:"index"`
	FirstFrame   int             `json:"first_frame"`
	LastFrame    int             `json:"last_frame"`
	Label        emotion.Label   `json:"label"`
	Counts       []emotion.Count `json:"counts"`
	Sampled      int             `json:"sampled"`
	FailedFrames []FailedFrame   `json:"failed_frames,omitempty"`
}

type FailedFrame struct {
	Frame int    `json:"frame"`
	Error string `json:"error"`
}

func NewAnalysis(contentID string, cfg emotion.Config, result *emotion.Result, took time.Duration) *Analysis {
	a := &Analysis{
		ID:            uuid.New().String(),
		ContentID:     contentID,
		Labels:        result.Labels(),
		Stride:        cfg.Stride,
		WindowSize:    cfg.Window,
		Divisor:       cfg.Divisor,
		FramesSampled: result.Sampled,
		FramesFailed:  result.Failed,
		Segments:      make([]SegmentLog, 0, len(result.Segments)),
		DurationMS:    took.Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	for _, seg := range result.Segments {
		entry := SegmentLog{
			Index:      seg.Index,
			FirstFrame: seg.FirstFrame,
			LastFrame:  seg.LastFrame,
			Label:      seg.Label,
			Counts:     seg.Counts,
			Sampled:    seg.Sampled,
		}
		for _, f := range seg.Failures {
			entry.FailedFrames = append(entry.FailedFrames, FailedFrame{Frame: f.Index, Error: f.Err.Error()})
		}
		a.Segments = append(a.Segments, entry)
	}
	return a
}
