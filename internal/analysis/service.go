package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/kdimtricp/vmood/internal/gateway"
	"github.com/kdimtricp/vmood/internal/models"
	"github.com/kdimtricp/vmood/internal/storage"
	"github.com/sirupsen/logrus"
)

var ErrAnalysisNotFound = errors.New("analysis not found")

// Source is a frame source backed by a resource that must be released.
type Source interface {
	emotion.FrameSource
	io.Closer
}

// OpenFunc opens a decoded frame stream for a local video file.
type OpenFunc func(ctx context.Context, path string) (Source, error)

type Store interface {
	Create(ctx context.Context, a *models.Analysis) error
	GetByID(ctx context.Context, id string) (*models.Analysis, error)
	ListByContentID(ctx context.Context, contentID string) ([]*models.Analysis, error)
}

// Report is the outcome of one analysis. AnalysisID is empty when the
// run was not persisted.
type Report struct {
	AnalysisID string
	ContentID  string
	Result     *emotion.Result
}

type Service struct {
	engine  *emotion.Engine
	fetcher gateway.Fetcher
	files   storage.Storage
	open    OpenFunc
	store   Store
	log     logrus.FieldLogger
}

type Deps struct {
	Engine  *emotion.Engine
	Fetcher gateway.Fetcher
	Files   storage.Storage
	Open    OpenFunc
	// Store is optional. Without it analyses are not persisted.
	Store  Store
	Logger logrus.FieldLogger
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Engine == nil:
		return nil, errors.New("engine is required")
	case deps.Open == nil:
		return nil, errors.New("source opener is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		engine:  deps.Engine,
		fetcher: deps.Fetcher,
		files:   deps.Files,
		open:    deps.Open,
		store:   deps.Store,
		log:     logger.WithField("component", "analysis"),
	}, nil
}

// Analyze downloads contentID, runs the engine over it and records the
// result. Fetch failures are returned unchanged so callers can match
// gateway.ErrNotFound and *gateway.FetchError.
func (s *Service) Analyze(ctx context.Context, contentID string) (*Report, error) {
	return s.AnalyzeStream(ctx, contentID, nil)
}

// AnalyzeStream is Analyze with fn called for every segment as it is
// produced. An error from fn aborts the run and nothing is stored.
func (s *Service) AnalyzeStream(ctx context.Context, contentID string, fn func(emotion.Segment) error) (*Report, error) {
	if s.fetcher == nil || s.files == nil {
		return nil, errors.New("remote analysis is not configured")
	}
	log := s.log.WithField("content_id", contentID)

	data, err := s.fetcher.Fetch(ctx, contentID)
	if err != nil {
		return nil, err
	}
	log.WithField("bytes", len(data)).Debug("content fetched")

	name, err := s.files.SaveFile(bytes.NewReader(data), storage.FileInfo{
		Filename: contentID,
		Size:     int64(len(data)),
	})
	if err != nil {
		return nil, fmt.Errorf("saving content: %w", err)
	}
	defer func() {
		if err := s.files.DeleteFile(name); err != nil {
			log.WithError(err).Warn("failed to remove temp file")
		}
	}()

	path, err := s.files.Path(name)
	if err != nil {
		return nil, fmt.Errorf("resolving temp file: %w", err)
	}

	return s.run(ctx, contentID, path, fn)
}

// AnalyzeFile runs the engine over a local video. The content id of the
// stored record is the file's base name.
func (s *Service) AnalyzeFile(ctx context.Context, path string) (*Report, error) {
	return s.run(ctx, filepath.Base(path), path, nil)
}

func (s *Service) run(ctx context.Context, contentID, path string, fn func(emotion.Segment) error) (*Report, error) {
	log := s.log.WithField("content_id", contentID)

	src, err := s.open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening video: %w", err)
	}
	defer src.Close()

	start := time.Now()
	result := &emotion.Result{Segments: []emotion.Segment{}}
	err = s.engine.Stream(ctx, src, func(seg emotion.Segment) error {
		result.Add(seg)
		if fn != nil {
			return fn(seg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", contentID, err)
	}
	took := time.Since(start)

	log = log.WithFields(logrus.Fields{
		"segments": len(result.Segments),
		"sampled":  result.Sampled,
		"failed":   result.Failed,
		"took":     took,
	})

	report := &Report{ContentID: contentID, Result: result}
	if s.store == nil {
		log.Info("analysis complete")
		return report, nil
	}

	record := models.NewAnalysis(contentID, s.engine.Config(), result, took)
	if err := s.store.Create(ctx, record); err != nil {
		// the caller still gets its labels
		log.WithError(err).Error("failed to store analysis")
		return report, nil
	}
	report.AnalysisID = record.ID
	log.WithField("analysis_id", record.ID).Info("analysis stored")
	return report, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Analysis, error) {
	if s.store == nil {
		return nil, ErrAnalysisNotFound
	}
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading analysis: %w", err)
	}
	if a == nil {
		return nil, ErrAnalysisNotFound
	}
	return a, nil
}

func (s *Service) History(ctx context.Context, contentID string) ([]*models.Analysis, error) {
	if s.store == nil {
		return []*models.Analysis{}, nil
	}
	list, err := s.store.ListByContentID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	return list, nil
}
