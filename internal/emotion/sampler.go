package emotion

import (
	"errors"
	"fmt"
	"io"
)

// Frame is one decoded video frame, JPEG encoded.
type Frame struct {
	Index int
	Image []byte
}

// FrameSource yields frames in stream order and returns io.EOF once the
// stream is exhausted.
type FrameSource interface {
	Next() (Frame, error)
}

// Skipper is implemented by sources that can discard a frame without
// decoding it.
type Skipper interface {
	Skip() error
}

// Sampler restricts a source to every Stride-th frame. It consumes the
// source once and cannot be restarted.
type Sampler struct {
	src    FrameSource
	stride int
	next   int
	done   bool
}

func NewSampler(src FrameSource, stride int) *Sampler {
	if stride < 1 {
		stride = 1
	}
	return &Sampler{src: src, stride: stride}
}

// Next returns the next sampled frame, io.EOF at end of stream, or the
// source's error. Indices are assigned by stream position.
func (s *Sampler) Next() (Frame, error) {
	if s.done {
		return Frame{}, io.EOF
	}
	skipper, canSkip := s.src.(Skipper)
	for {
		if canSkip && s.next%s.stride != 0 {
			if err := skipper.Skip(); err != nil {
				return Frame{}, s.fail(err)
			}
			s.next++
			continue
		}

		frame, err := s.src.Next()
		if err != nil {
			return Frame{}, s.fail(err)
		}
		frame.Index = s.next
		s.next++
		if frame.Index%s.stride == 0 {
			return frame, nil
		}
	}
}

func (s *Sampler) fail(err error) error {
	s.done = true
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return fmt.Errorf("reading frame %d: %w", s.next, err)
}

// SliceSource serves frames from memory.
type SliceSource struct {
	frames [][]byte
	pos    int
}

func NewSliceSource(frames ...[]byte) *SliceSource {
	return &SliceSource{frames: frames}
}

func (s *SliceSource) Skip() error {
	if s.pos >= len(s.frames) {
		return io.EOF
	}
	s.pos++
	return nil
}

func (s *SliceSource) Next() (Frame, error) {
	if s.pos >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := Frame{Index: s.pos, Image: s.frames[s.pos]}
	s.pos++
	return f, nil
}
