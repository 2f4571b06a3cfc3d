package emotion

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

var errNoFace = errors.New("no face")

// scriptedClassifier answers by frame index; an empty entry fails.
type scriptedClassifier struct {
	labels []Label
	calls  atomic.Int32
	delay  func(index int) time.Duration
}

func (c *scriptedClassifier) Classify(ctx context.Context, frame Frame) (Label, error) {
	c.calls.Add(1)
	if c.delay != nil {
		time.Sleep(c.delay(frame.Index))
	}
	if frame.Index >= len(c.labels) || c.labels[frame.Index] == "" {
		return "", errNoFace
	}
	return c.labels[frame.Index], nil
}

func framesN(n int) *SliceSource {
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = []byte{byte(i)}
	}
	return NewSliceSource(frames...)
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestEngine(t *testing.T, c Classifier, cfg Config) *Engine {
	t.Helper()
	engine, err := NewEngine(c, cfg, quietLogger())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func scenarioLabels() []Label {
	var labels []Label
	labels = append(labels, Neutral, Happy, Neutral, Neutral, Neutral, Happy, Neutral, Neutral, Neutral, Neutral)
	labels = append(labels, repeat(Sad, 10)...)
	labels = append(labels, Neutral)
	labels = append(labels, make([]Label, 9)...)
	return labels
}

func TestEngineEndToEndScenario(t *testing.T) {
	classifier := &scriptedClassifier{labels: scenarioLabels()}
	engine := newTestEngine(t, classifier, DefaultConfig())

	result, err := engine.Run(context.Background(), framesN(30))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Label{Happy, Sad, Neutral}
	if got := result.Labels(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if result.Sampled != 30 {
		t.Errorf("expected 30 sampled frames, got %d", result.Sampled)
	}
	if result.Failed != 9 {
		t.Errorf("expected 9 failed frames, got %d", result.Failed)
	}

	third := result.Segments[2]
	if third.Failed() != 9 {
		t.Errorf("expected 9 failures in last window, got %d", third.Failed())
	}
	if !errors.Is(third.Failures[0], errNoFace) {
		t.Errorf("expected failure to wrap classifier error, got %v", third.Failures[0])
	}
	if third.Failures[0].Index != 21 {
		t.Errorf("expected first failure at frame 21, got %d", third.Failures[0].Index)
	}
	if third.FirstFrame != 20 || third.LastFrame != 29 {
		t.Errorf("expected frames 20-29, got %d-%d", third.FirstFrame, third.LastFrame)
	}
}

func TestEngineWindowCount(t *testing.T) {
	tests := []struct {
		name    string
		frames  int
		stride  int
		window  int
		windows int
	}{
		{name: "empty stream", frames: 0, stride: 1, window: 10, windows: 0},
		{name: "shorter than one window", frames: 3, stride: 1, window: 10, windows: 1},
		{name: "exact windows", frames: 20, stride: 1, window: 10, windows: 2},
		{name: "short trailing window", frames: 25, stride: 1, window: 10, windows: 3},
		{name: "stride reduces sampled frames", frames: 40, stride: 4, window: 10, windows: 1},
		{name: "stride with remainder", frames: 45, stride: 4, window: 10, windows: 2},
		{name: "whole stream window", frames: 45, stride: 1, window: 0, windows: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := repeat(Happy, tt.frames)
			cfg := DefaultConfig()
			cfg.Stride = tt.stride
			cfg.Window = tt.window
			engine := newTestEngine(t, &scriptedClassifier{labels: labels}, cfg)

			result, err := engine.Run(context.Background(), framesN(tt.frames))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Segments) != tt.windows {
				t.Errorf("expected %d windows, got %d", tt.windows, len(result.Segments))
			}
		})
	}
}

func TestEngineEmptyStreamIsNotAnError(t *testing.T) {
	engine := newTestEngine(t, &scriptedClassifier{}, DefaultConfig())

	result, err := engine.Run(context.Background(), framesN(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Labels() == nil || len(result.Labels()) != 0 {
		t.Errorf("expected empty non-nil sequence, got %v", result.Labels())
	}
}

func TestEngineAllFramesFailEmitsNone(t *testing.T) {
	engine := newTestEngine(t, &scriptedClassifier{}, DefaultConfig())

	result, err := engine.Run(context.Background(), framesN(15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Label{None, None}
	if got := result.Labels(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if result.Failed != 15 {
		t.Errorf("expected 15 failures, got %d", result.Failed)
	}
}

func TestEngineStrideOnlyClassifiesSampledFrames(t *testing.T) {
	labels := make([]Label, 12)
	for i := range labels {
		labels[i] = Sad
		if i%4 == 0 {
			labels[i] = Fear
		}
	}
	classifier := &scriptedClassifier{labels: labels}
	cfg := DefaultConfig()
	cfg.Stride = 4
	engine := newTestEngine(t, classifier, cfg)

	result, err := engine.Run(context.Background(), framesN(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := classifier.calls.Load(); got != 3 {
		t.Errorf("expected 3 classifier calls, got %d", got)
	}
	if got := result.Labels(); !reflect.DeepEqual(got, []Label{Fear}) {
		t.Errorf("expected [fear], got %v", got)
	}
	if seg := result.Segments[0]; seg.FirstFrame != 0 || seg.LastFrame != 8 {
		t.Errorf("expected frames 0-8, got %d-%d", seg.FirstFrame, seg.LastFrame)
	}
}

func TestEngineIsDeterministic(t *testing.T) {
	labels := []Label{Sad, Happy, Happy, Sad, Neutral, Neutral, Neutral, Neutral, Angry, Angry, Surprise}
	cfg := DefaultConfig()
	cfg.Window = 4

	var first []Label
	for run := 0; run < 5; run++ {
		engine := newTestEngine(t, &scriptedClassifier{labels: labels}, cfg)
		result, err := engine.Run(context.Background(), framesN(len(labels)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run == 0 {
			first = result.Labels()
			continue
		}
		if got := result.Labels(); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d produced %v, first run produced %v", run, got, first)
		}
	}

	want := []Label{Sad, Neutral, Angry}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("expected %v, got %v", want, first)
	}
}

func TestEngineWorkersPreserveTieBreak(t *testing.T) {
	// Later frames finish first; the tie must still go to the label seen
	// first in frame order.
	labels := []Label{Angry, Happy, Happy, Angry}
	cfg := DefaultConfig()
	cfg.Window = 4
	cfg.Workers = 4
	classifier := &scriptedClassifier{
		labels: labels,
		delay: func(index int) time.Duration {
			return time.Duration(len(labels)-index) * 5 * time.Millisecond
		},
	}
	engine := newTestEngine(t, classifier, cfg)

	result, err := engine.Run(context.Background(), framesN(len(labels)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Labels(); !reflect.DeepEqual(got, []Label{Angry}) {
		t.Errorf("expected [angry], got %v", got)
	}
	want := []Count{{Angry, 2}, {Happy, 2}}
	if got := result.Segments[0].Counts; !reflect.DeepEqual(got, want) {
		t.Errorf("expected counts %v, got %v", want, got)
	}
}

func TestEngineWorkersBounded(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0
	classifier := ClassifierFunc(func(ctx context.Context, f Frame) (Label, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return Happy, nil
	})
	cfg := DefaultConfig()
	cfg.Workers = 3
	engine := newTestEngine(t, classifier, cfg)

	if _, err := engine.Run(context.Background(), framesN(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak > 3 {
		t.Errorf("expected at most 3 concurrent calls, got %d", peak)
	}
}

func TestEngineEmptyLabelCountsAsFailure(t *testing.T) {
	classifier := ClassifierFunc(func(ctx context.Context, f Frame) (Label, error) {
		if f.Index == 0 {
			return Happy, nil
		}
		return "", nil
	})
	engine := newTestEngine(t, classifier, DefaultConfig())

	result, err := engine.Run(context.Background(), framesN(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seg := result.Segments[0]
	if seg.Failed() != 2 {
		t.Errorf("expected 2 failures, got %d", seg.Failed())
	}
	if !errors.Is(seg.Failures[0], ErrUndetermined) {
		t.Errorf("expected ErrUndetermined, got %v", seg.Failures[0])
	}
}

func TestEngineCancelBetweenWindows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifier := ClassifierFunc(func(ctx context.Context, f Frame) (Label, error) {
		if f.Index == 9 {
			cancel()
		}
		return Happy, nil
	})
	engine := newTestEngine(t, classifier, DefaultConfig())

	result, err := engine.Run(ctx, framesN(30))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result != nil {
		t.Errorf("expected no partial result, got %v", result.Labels())
	}
}

func TestEngineStreamDeliversSegmentsInOrder(t *testing.T) {
	labels := append(repeat(Sad, 10), repeat(Happy, 5)...)
	engine := newTestEngine(t, &scriptedClassifier{labels: labels}, DefaultConfig())

	var got []int
	err := engine.Stream(context.Background(), framesN(len(labels)), func(seg Segment) error {
		got = append(got, seg.Index)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("expected segments [0 1], got %v", got)
	}
}

func TestEngineStreamStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	engine := newTestEngine(t, &scriptedClassifier{labels: repeat(Sad, 30)}, DefaultConfig())

	calls := 0
	err := engine.Stream(context.Background(), framesN(30), func(seg Segment) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 callback, got %d", calls)
	}
}

type brokenSource struct{ n int }

func (s *brokenSource) Next() (Frame, error) {
	if s.n == 0 {
		return Frame{}, errors.New("decoder crashed")
	}
	s.n--
	return Frame{}, nil
}

func TestEngineSourceErrorAbortsRun(t *testing.T) {
	engine := newTestEngine(t, &scriptedClassifier{labels: repeat(Sad, 30)}, DefaultConfig())

	if _, err := engine.Run(context.Background(), &brokenSource{n: 3}); err == nil {
		t.Error("expected error from broken source")
	}
}

func TestEngineMajorityPreset(t *testing.T) {
	labels := make([]Label, 40)
	for i := range labels {
		switch {
		case i%4 != 0:
			labels[i] = Angry
		case i < 24:
			labels[i] = Neutral
		default:
			labels[i] = Happy
		}
	}
	engine := newTestEngine(t, &scriptedClassifier{labels: labels}, Majority())

	result, err := engine.Run(context.Background(), framesN(len(labels)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// sampled: 6 neutral, 4 happy; no suppression
	if got := result.Labels(); !reflect.DeepEqual(got, []Label{Neutral}) {
		t.Errorf("expected [neutral], got %v", got)
	}
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero stride", Config{Stride: 0, Window: 10, Divisor: 3, Workers: 1}},
		{"negative window", Config{Stride: 1, Window: -1, Divisor: 3, Workers: 1}},
		{"zero divisor", Config{Stride: 1, Window: 10, Divisor: 0, Workers: 1}},
		{"zero workers", Config{Stride: 1, Window: 10, Divisor: 3, Workers: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(&scriptedClassifier{}, tt.cfg, nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if _, err := NewEngine(nil, DefaultConfig(), nil); err == nil {
		t.Error("expected error for nil classifier")
	}
}

func TestSampler(t *testing.T) {
	s := NewSampler(framesN(10), 3)

	var got []int
	for {
		f, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, f.Index)
	}
	if !reflect.DeepEqual(got, []int{0, 3, 6, 9}) {
		t.Errorf("expected [0 3 6 9], got %v", got)
	}

	if _, err := s.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after exhaustion, got %v", err)
	}
}
