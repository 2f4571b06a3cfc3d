package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", HomeHandler)
	r.Get("/ping", PingHandler)

	r.Get("/analyze/{id}", app.AnalyzeHandler)
	r.Get("/analyze/{id}/stream", app.AnalyzeStreamHandler)
	r.Get("/analyses/{analysisID}", app.GetAnalysisHandler)
	r.Get("/content/{id}/analyses", app.ListAnalysesHandler)

	return r
}
