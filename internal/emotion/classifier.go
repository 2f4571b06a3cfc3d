package emotion

import (
	"context"
	"errors"
	"fmt"
)

// ErrUndetermined is returned by classifiers that could not find a face or
// produce a usable label. The frame contributes no vote.
var ErrUndetermined = errors.New("emotion undetermined")

type Classifier interface {
	Classify(ctx context.Context, frame Frame) (Label, error)
}

type ClassifierFunc func(ctx context.Context, frame Frame) (Label, error)

func (f ClassifierFunc) Classify(ctx context.Context, frame Frame) (Label, error) {
	return f(ctx, frame)
}

// FrameError records a failed classification attempt.
type FrameError struct {
	Index int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Index, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
