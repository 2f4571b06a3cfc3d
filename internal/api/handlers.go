package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/vmood/internal/analysis"
	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/kdimtricp/vmood/internal/gateway"
	"github.com/kdimtricp/vmood/internal/models"
	"github.com/sirupsen/logrus"
)

const analysisIDHeader = "X-Analysis-ID"

type Analyzer interface {
	Analyze(ctx context.Context, contentID string) (*analysis.Report, error)
	AnalyzeStream(ctx context.Context, contentID string, fn func(emotion.Segment) error) (*analysis.Report, error)
	Get(ctx context.Context, id string) (*models.Analysis, error)
	History(ctx context.Context, contentID string) ([]*models.Analysis, error)
}

type App struct {
	Analyzer Analyzer
	Log      logrus.FieldLogger
}

type analyzeResponse struct {
	Results []string `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func HomeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("vmood"))
}

func (app *App) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")

	report, err := app.Analyzer.Analyze(r.Context(), contentID)
	if err != nil {
		app.writeError(w, contentID, err)
		return
	}

	if report.AnalysisID != "" {
		w.Header().Set(analysisIDHeader, report.AnalysisID)
	}
	app.writeJSON(w, http.StatusOK, analyzeResponse{Results: emotion.Strings(report.Result.Labels())})
}

// AnalyzeStreamHandler emits one "segment" event per window and a final
// "done" event carrying the full label sequence.
func (app *App) AnalyzeStreamHandler(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		app.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	started := false
	send := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			started = true
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	report, err := app.Analyzer.AnalyzeStream(r.Context(), contentID, func(seg emotion.Segment) error {
		return send("segment", seg)
	})
	if err != nil {
		if !started {
			app.writeError(w, contentID, err)
			return
		}
		app.logger().WithError(err).WithField("content_id", contentID).Warn("stream aborted")
		send("error", errorResponse{Error: err.Error()})
		return
	}

	done := struct {
		AnalysisID string   `json:"analysis_id,omitempty"`
		Results    []string `json:"results"`
	}{
		AnalysisID: report.AnalysisID,
		Results:    emotion.Strings(report.Result.Labels()),
	}
	send("done", done)
}

func (app *App) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "analysisID")

	a, err := app.Analyzer.Get(r.Context(), id)
	if err != nil {
		app.writeError(w, id, err)
		return
	}
	app.writeJSON(w, http.StatusOK, a)
}

func (app *App) ListAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")

	list, err := app.Analyzer.History(r.Context(), contentID)
	if err != nil {
		app.writeError(w, contentID, err)
		return
	}
	app.writeJSON(w, http.StatusOK, struct {
		Analyses []*models.Analysis `json:"analyses"`
	}{Analyses: list})
}

func statusFor(err error) int {
	var fetchErr *gateway.FetchError
	switch {
	case errors.Is(err, gateway.ErrNotFound), errors.Is(err, analysis.ErrAnalysisNotFound):
		return http.StatusNotFound
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (app *App) writeError(w http.ResponseWriter, id string, err error) {
	status := statusFor(err)
	entry := app.logger().WithError(err).WithField("id", id)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Info("request failed")
	}
	app.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (app *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.logger().WithError(err).Warn("failed to write response")
	}
}

func (app *App) logger() logrus.FieldLogger {
	if app.Log == nil {
		return logrus.StandardLogger()
	}
	return app.Log
}
