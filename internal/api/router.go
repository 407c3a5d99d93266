/**
 * @description
 * This file sets up the HTTP router for the settlement watcher. It defines
 * the health probe, the websocket session endpoint, and the notification
 * read endpoint, and applies the standard middleware set.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// WatcherRoutes creates and returns the router for the settlement watcher.
// sessions is the websocket hub's HTTP entry point.
func WatcherRoutes(h *WatcherHandlers, sessions http.Handler) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging and panic recovery. The websocket
	// route is mounted outside the timeout group: sessions are long-lived.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Handle("/ws", sessions)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/notifications", h.ListNotificationsHandler)
	})

	return r
}
