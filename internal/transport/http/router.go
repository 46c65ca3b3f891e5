package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the transport settings from the service config.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter mounts the REST API, the play websocket and the health check.
func NewRouter(api *Handler, ws *WSHandler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Organizer-Password"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws/attempts/{attemptID}", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Post("/quizzes", api.CreateQuiz)
		r.Get("/quizzes/{ref}", api.GetQuiz)
		r.Delete("/quizzes/{ref}", api.DeleteQuiz)
		r.Post("/quizzes/{ref}/attempts", api.CreateAttempt)
		r.Get("/quizzes/{ref}/results", api.Results)
		r.Get("/quizzes/{ref}/results.xlsx", api.ResultsXLSX)
		r.Post("/organizer/quizzes", api.ListQuizzes)

		r.Post("/attempts/{attemptID}/responses", api.SubmitResponse)
		r.Post("/attempts/{attemptID}/finish", api.FinishAttempt)
		r.Get("/attempts/{attemptID}/progress", api.Progress)
		r.Get("/attempts/{attemptID}/report", api.Report)
	})
	return r
}
