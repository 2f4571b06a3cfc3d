package emotion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	DefaultStride = 1
	DefaultWindow = 10

	// MajorityStride matches the skip-frame majority analyser.
	MajorityStride = 4
)

type Config struct {
	Stride int `yaml:"stride"`
	// Window is the number of sampled frames reduced to one label. Zero
	// reduces the whole stream as a single window.
	Window          int  `yaml:"window"`
	Divisor         int  `yaml:"divisor"`
	SuppressNeutral bool `yaml:"suppress_neutral"`
	// Workers bounds concurrent classifier calls within a window.
	Workers int `yaml:"workers"`
}

func DefaultConfig() Config {
	return Config{
		Stride:          DefaultStride,
		Window:          DefaultWindow,
		Divisor:         DefaultDivisor,
		SuppressNeutral: true,
		Workers:         1,
	}
}

// Majority is plain majority vote over the whole video.
func Majority() Config {
	return Config{
		Stride:          MajorityStride,
		Window:          0,
		Divisor:         DefaultDivisor,
		SuppressNeutral: false,
		Workers:         1,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Stride < 1:
		return fmt.Errorf("stride must be at least 1, got %d", c.Stride)
	case c.Window < 0:
		return fmt.Errorf("window must not be negative, got %d", c.Window)
	case c.Divisor < 1:
		return fmt.Errorf("divisor must be at least 1, got %d", c.Divisor)
	case c.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

func (c Config) Policy() Policy {
	return Policy{Divisor: c.Divisor, SuppressNeutral: c.SuppressNeutral}
}

type Segment struct {
	Index      int           `json:"index"`
	FirstFrame int           `json:"first_frame"`
	LastFrame  int           `json:"last_frame"`
	Label      Label         `json:"label"`
	Counts     []Count       `json:"counts"`
	Sampled    int           `json:"sampled"`
	Failures   []*FrameError `json:"-"`
}

func (s Segment) Failed() int {
	return len(s.Failures)
}

type Result struct {
	Segments []Segment
	Sampled  int
	Failed   int
}

// Add appends seg and updates the frame counters.
func (r *Result) Add(seg Segment) {
	r.Segments = append(r.Segments, seg)
	r.Sampled += seg.Sampled
	r.Failed += seg.Failed()
}

func (r *Result) Labels() []Label {
	labels := make([]Label, len(r.Segments))
	for i, s := range r.Segments {
		labels[i] = s.Label
	}
	return labels
}

type Engine struct {
	classifier Classifier
	cfg        Config
	log        logrus.FieldLogger
}

func NewEngine(classifier Classifier, cfg Config, logger logrus.FieldLogger) (*Engine, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		classifier: classifier,
		cfg:        cfg,
		log:        logger.WithField("component", "engine"),
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Run consumes src and returns the full segment sequence. A cancelled
// context stops the run between windows and no partial result is returned.
func (e *Engine) Run(ctx context.Context, src FrameSource) (*Result, error) {
	result := &Result{Segments: []Segment{}}
	err := e.Stream(ctx, src, func(seg Segment) error {
		result.Add(seg)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"windows": len(result.Segments),
		"sampled": result.Sampled,
		"failed":  result.Failed,
	}).Info("analysis complete")
	return result, nil
}

// Stream calls fn with each segment as soon as its window is reduced.
// Returning an error from fn stops the run.
func (e *Engine) Stream(ctx context.Context, src FrameSource, fn func(Segment) error) error {
	sampler := NewSampler(src, e.cfg.Stride)
	reducer := NewReducer(e.cfg.Policy())

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frames, eof, err := e.collect(sampler)
		if err != nil {
			return err
		}
		if len(frames) == 0 {
			return nil
		}

		seg := e.reduceWindow(ctx, reducer, index, frames)
		if err := fn(seg); err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

func (e *Engine) collect(sampler *Sampler) ([]Frame, bool, error) {
	var frames []Frame
	for e.cfg.Window == 0 || len(frames) < e.cfg.Window {
		frame, err := sampler.Next()
		if errors.Is(err, io.EOF) {
			return frames, true, nil
		}
		if err != nil {
			return nil, true, err
		}
		frames = append(frames, frame)
	}
	return frames, false, nil
}

type outcome struct {
	label Label
	err   error
}

func (e *Engine) reduceWindow(ctx context.Context, reducer *Reducer, index int, frames []Frame) Segment {
	outcomes := e.classifyAll(ctx, frames)

	seg := Segment{
		Index:      index,
		FirstFrame: frames[0].Index,
		LastFrame:  frames[len(frames)-1].Index,
		Sampled:    len(frames),
	}

	// Votes are recorded in frame order regardless of completion order.
	for i, out := range outcomes {
		if out.err != nil {
			fe := &FrameError{Index: frames[i].Index, Err: out.err}
			seg.Failures = append(seg.Failures, fe)
			e.log.WithFields(logrus.Fields{
				"window": index,
				"frame":  fe.Index,
			}).WithError(out.err).Warn("frame classification failed")
			continue
		}
		reducer.Record(out.label)
	}

	seg.Label, seg.Counts = reducer.Reduce()

	e.log.WithFields(logrus.Fields{
		"window": index,
		"label":  seg.Label,
		"counts": seg.Counts,
		"failed": seg.Failed(),
	}).Debug("window reduced")
	return seg
}

func (e *Engine) classifyAll(ctx context.Context, frames []Frame) []outcome {
	outcomes := make([]outcome, len(frames))
	if e.cfg.Workers <= 1 || len(frames) == 1 {
		for i, f := range frames {
			outcomes[i] = e.classify(ctx, f)
		}
		return outcomes
	}

	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup
	for i, f := range frames {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, f Frame) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = e.classify(ctx, f)
		}(i, f)
	}
	wg.Wait()
	return outcomes
}

func (e *Engine) classify(ctx context.Context, f Frame) outcome {
	label, err := e.classifier.Classify(ctx, f)
	if err != nil {
		return outcome{err: err}
	}
	if label == "" || label == None {
		return outcome{err: ErrUndetermined}
	}
	return outcome{label: label}
}
