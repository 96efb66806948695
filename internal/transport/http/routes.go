package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "geo-export-service/docs"
	"geo-export-service/internal/metrics"
)

func Routes(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(h.logger))
	r.Use(CORS(allowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	// synchronous
	r.Post("/count", h.Count)
	r.Post("/download", h.Download)

	r.Route("/api", func(r chi.Router) {
		r.Post("/count", h.CreateCountJob)
		r.Get("/count/{jobId}", h.GetCountJob)
		r.Post("/download", h.CreateExportJob)
		r.Get("/download/{jobId}", h.GetExportJob)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
