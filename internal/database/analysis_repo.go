package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/kdimtricp/vmood/internal/models"
)

const analysisColumns = `id, content_id, labels, stride, window_size, divisor,
	frames_sampled, frames_failed, frame_log, duration_ms, created_at`

type AnalysisRepo struct {
	db *DB
}

func NewAnalysisRepo(db *DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

func (r *AnalysisRepo) Create(ctx context.Context, a *models.Analysis) error {
	labels, err := json.Marshal(emotion.Strings(a.Labels))
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}
	frameLog, err := encodeFrameLog(a.Segments)
	if err != nil {
		return err
	}

	query := r.rebind(`INSERT INTO analyses (` + analysisColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = r.db.conn.ExecContext(ctx, query,
		a.ID,
		a.ContentID,
		string(labels),
		a.Stride,
		a.WindowSize,
		a.Divisor,
		a.FramesSampled,
		a.FramesFailed,
		frameLog,
		a.DurationMS,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// GetByID returns nil, nil when no analysis has the id.
func (r *AnalysisRepo) GetByID(ctx context.Context, id string) (*models.Analysis, error) {
	query := r.rebind(`SELECT ` + analysisColumns + ` FROM analyses WHERE id = ?`)

	a, err := scanAnalysis(r.db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// ListByContentID returns the analyses of one content id, newest first.
func (r *AnalysisRepo) ListByContentID(ctx context.Context, contentID string) ([]*models.Analysis, error) {
	query := r.rebind(`SELECT ` + analysisColumns + ` FROM analyses
		WHERE content_id = ? ORDER BY created_at DESC, id`)

	rows, err := r.db.conn.QueryContext(ctx, query, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	analyses := []*models.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, nil
}

func (r *AnalysisRepo) DeleteByContentID(ctx context.Context, contentID string) (int64, error) {
	res, err := r.db.conn.ExecContext(ctx, r.rebind(`DELETE FROM analyses WHERE content_id = ?`), contentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analyses: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	var (
		a         models.Analysis
		labels    string
		frameLog  []byte
		createdAt time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.ContentID,
		&labels,
		&a.Stride,
		&a.WindowSize,
		&a.Divisor,
		&a.FramesSampled,
		&a.FramesFailed,
		&frameLog,
		&a.DurationMS,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal([]byte(labels), &names); err != nil {
		return nil, fmt.Errorf("invalid labels column: %w", err)
	}
	a.Labels = make([]emotion.Label, len(names))
	for i, name := range names {
		a.Labels[i] = emotion.Label(name)
	}

	if a.Segments, err = decodeFrameLog(frameLog); err != nil {
		return nil, err
	}
	a.CreatedAt = createdAt.UTC()
	return &a, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (r *AnalysisRepo) rebind(query string) string {
	if r.db.dbType != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
