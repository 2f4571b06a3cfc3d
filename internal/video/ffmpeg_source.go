package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/kdimtricp/vmood/internal/analysis"
	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/sirupsen/logrus"
)

const jpegQuality = 85

type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	log         logrus.FieldLogger
}

func NewExtractor(logger logrus.FieldLogger) (*Extractor, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "video")
	logger.WithField("ffmpeg", ffmpegPath).Debug("found ffmpeg")

	return &Extractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         logger,
	}, nil
}

// Open starts decoding videoPath. size > 0 caps the longer frame edge.
// The caller must Close the returned source.
func (x *Extractor) Open(ctx context.Context, videoPath string, size int) (*FFmpegSource, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	width, height, err := x.probeDimensions(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe video: %w", err)
	}
	width, height = scaledDimensions(width, height, size)

	args := []string{
		"-v", "error",
		"-i", videoPath,
		"-map", "0:v:0",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}

	cmd := exec.CommandContext(ctx, x.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg output: %w", err)
	}

	x.log.WithFields(logrus.Fields{
		"path":   videoPath,
		"width":  width,
		"height": height,
	}).Debug("starting ffmpeg decoder")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &FFmpegSource{
		cmd:    cmd,
		stderr: &stderr,
		frames: NewRawReader(bufio.NewReaderSize(stdout, width*height*3), width, height),
		log:    x.log,
	}, nil
}

func (x *Extractor) probeDimensions(ctx context.Context, videoPath string) (int, int, error) {
	cmd := exec.CommandContext(ctx, x.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		videoPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseDimensions(stdout.String())
}

func parseDimensions(out string) (int, int, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	parts := strings.Split(line, "x")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid dimensions: %q", line)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q: %w", parts[0], err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q: %w", parts[1], err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	return width, height, nil
}

// scaledDimensions keeps the aspect ratio and returns even sizes as
// required by most decoders' scalers.
func scaledDimensions(width, height, size int) (int, int) {
	if size > 0 && (width > size || height > size) {
		if width >= height {
			height = height * size / width
			width = size
		} else {
			width = width * size / height
			height = size
		}
	}
	width -= width % 2
	height -= height % 2
	if width < 2 {
		width = 2
	}
	if height < 2 {
		height = 2
	}
	return width, height
}

// FFmpegSource streams decoded frames from an ffmpeg process.
type FFmpegSource struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	frames *RawReader
	log    logrus.FieldLogger
	closed bool
}

func (s *FFmpegSource) Next() (emotion.Frame, error) {
	frame, err := s.frames.Next()
	if errors.Is(err, io.EOF) {
		if werr := s.wait(); werr != nil {
			// Decode errors after partial output end the stream.
			s.log.WithError(werr).Warn("ffmpeg exited with error")
		}
		return emotion.Frame{}, io.EOF
	}
	return frame, err
}

func (s *FFmpegSource) Skip() error {
	err := s.frames.Skip()
	if errors.Is(err, io.EOF) {
		if werr := s.wait(); werr != nil {
			s.log.WithError(werr).Warn("ffmpeg exited with error")
		}
		return io.EOF
	}
	return err
}

func (s *FFmpegSource) wait() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

func (s *FFmpegSource) Close() error {
	if s.closed {
		return nil
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.wait()
	return nil
}

// RawReader splits an rgb24 byte stream into JPEG encoded frames.
type RawReader struct {
	r      io.Reader
	width  int
	height int
	buf    []byte
	index  int
}

func NewRawReader(r io.Reader, width, height int) *RawReader {
	return &RawReader{
		r:      r,
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
}

func (rr *RawReader) read() error {
	if _, err := io.ReadFull(rr.r, rr.buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// trailing partial frame
			return io.EOF
		}
		return err
	}
	return nil
}

// Skip discards one frame without encoding it.
func (rr *RawReader) Skip() error {
	if err := rr.read(); err != nil {
		return err
	}
	rr.index++
	return nil
}

func (rr *RawReader) Next() (emotion.Frame, error) {
	if err := rr.read(); err != nil {
		return emotion.Frame{}, err
	}

	img := image.NewRGBA(image.Rect(0, 0, rr.width, rr.height))
	for src, dst := 0, 0; src < len(rr.buf); src, dst = src+3, dst+4 {
		img.Pix[dst] = rr.buf[src]
		img.Pix[dst+1] = rr.buf[src+1]
		img.Pix[dst+2] = rr.buf[src+2]
		img.Pix[dst+3] = 0xff
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return emotion.Frame{}, fmt.Errorf("failed to encode frame %d: %w", rr.index, err)
	}

	frame := emotion.Frame{Index: rr.index, Image: out.Bytes()}
	rr.index++
	return frame, nil
}

// Opener adapts Open to the analysis service's source factory.
func (x *Extractor) Opener(size int) analysis.OpenFunc {
	return func(ctx context.Context, path string) (analysis.Source, error) {
		src, err := x.Open(ctx, path, size)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
