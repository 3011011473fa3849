package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guestlens/guestlens/internal/web/handlers"
	"github.com/guestlens/guestlens/internal/web/static"
)

func (s *Server) setupRoutes() {
	reportHandler := handlers.NewReportHandler(s.layout)
	galleryHandler := handlers.NewGalleryHandler(s.layout)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/report", reportHandler.Get)
		r.Get("/review", reportHandler.Review)

		r.Get("/guests", galleryHandler.List)
		r.Get("/guests/{guest}/photos", galleryHandler.Photos)
	})

	s.router.Get("/photos/{kind}/{guest}/{file}", galleryHandler.Image)

	s.router.Get("/", s.serveIndex)
}

// serveIndex serves the embedded single-page gallery browser.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(static.Index())
}
