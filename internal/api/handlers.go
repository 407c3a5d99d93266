/**
 * @description
 * HTTP handlers for the settlement watcher's small read surface: a health
 * probe and the notification inbox the web client polls when it has no live
 * websocket session.
 *
 * @dependencies
 * - net/http, encoding/json: Standard Go libraries.
 * - internal/store: Read access to persisted notifications.
 */

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/juliangm996/pluto-server-dlycop/internal/store"
)

// WatcherHandlers bundles the dependencies of the HTTP surface.
type WatcherHandlers struct {
	repo store.Repository
}

func NewWatcherHandlers(repo store.Repository) *WatcherHandlers {
	return &WatcherHandlers{repo: repo}
}

// ListNotificationsHandler returns the newest notifications for a user.
func (h *WatcherHandlers) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user_id")
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	items, err := h.repo.ListNotificationsByUserID(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "Could not list notifications")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": items})
}

// writeJSON is a helper for writing JSON responses.
func (h *WatcherHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *WatcherHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
