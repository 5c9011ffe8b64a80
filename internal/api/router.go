package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ratefeed/internal/feed"
)

func NewRouter(feedHandler *feed.Handler, metricsHandler http.Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.Heartbeat("/healthz"))

	router.Get("/", feedHandler.GetFeed)
	router.Get("/rates.xml", feedHandler.GetFeed)
	router.Get("/request-exportxml.xml", feedHandler.GetFeed)
	router.Handle("/metrics", metricsHandler)
	return router
}
