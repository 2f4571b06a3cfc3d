package video

import (
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestRawReader(t *testing.T) {
	const w, h = 4, 2
	frameSize := w * h * 3

	// two full frames and a truncated third
	data := make([]byte, frameSize*2+5)
	for i := range data {
		data[i] = byte(i % 251)
	}

	rr := NewRawReader(bytes.NewReader(data), w, h)

	for i := 0; i < 2; i++ {
		frame, err := rr.Next()
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		if frame.Index != i {
			t.Errorf("expected index %d, got %d", i, frame.Index)
		}
		img, err := jpeg.Decode(bytes.NewReader(frame.Image))
		if err != nil {
			t.Fatalf("frame %d is not a valid JPEG: %v", i, err)
		}
		if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
			t.Errorf("expected %dx%d, got %dx%d", w, h, b.Dx(), b.Dy())
		}
	}

	if _, err := rr.Next(); err != io.EOF {
		t.Errorf("expected io.EOF for partial frame, got %v", err)
	}
}

func TestRawReaderSkip(t *testing.T) {
	const w, h = 2, 2
	data := make([]byte, w*h*3*3)
	rr := NewRawReader(bytes.NewReader(data), w, h)

	if err := rr.Skip(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, err := rr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Index != 1 {
		t.Errorf("expected index 1 after skip, got %d", frame.Index)
	}
	if err := rr.Skip(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rr.Skip(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestScaledDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		size          int
		wantW, wantH  int
	}{
		{"no cap", 1280, 720, 0, 1280, 720},
		{"landscape", 1280, 720, 512, 512, 288},
		{"portrait", 720, 1280, 512, 288, 512},
		{"already small", 320, 240, 512, 320, 240},
		{"odd sizes rounded down", 641, 481, 0, 640, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := scaledDimensions(tt.width, tt.height, tt.size)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, w, h)
			}
		})
	}
}

func TestParseDimensions(t *testing.T) {
	w, h, err := parseDimensions("1920x1080\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != 1920 || h != 1080 {
		t.Errorf("expected 1920x1080, got %dx%d", w, h)
	}

	for _, bad := range []string{"", "1920", "axb", "0x0"} {
		if _, _, err := parseDimensions(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFFmpegSource(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	logger, _ := test.NewNullLogger()
	x, err := NewExtractor(logger)
	if err != nil {
		t.Skipf("extractor unavailable: %v", err)
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	gen := exec.Command(ffmpeg, "-v", "error", "-f", "lavfi", "-i", "testsrc=size=160x120:rate=10",
		"-frames:v", "12", "-pix_fmt", "yuv420p", path)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("could not generate test clip: %v: %s", err, out)
	}

	open := x.Opener(64)
	if _, err := open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Error("expected error for missing file")
	}

	src, err := open(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to open source: %v", err)
	}
	defer src.Close()

	sampler := emotion.NewSampler(src, 3)
	var indices []int
	for {
		frame, err := sampler.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		indices = append(indices, frame.Index)
	}

	if len(indices) != 4 {
		t.Errorf("expected 4 sampled frames, got %v", indices)
	}
}
