/**
 * @description
 * The websocket session hub. The web client opens one socket per signed-in
 * user; the hub records the session in the connection store (so the
 * reconciler can find a live push target by user id) and writes notification
 * entities to the socket as they are created. Delivery is best-effort: a
 * missing or broken session is never an error for the caller.
 *
 * @dependencies
 * - github.com/gorilla/websocket: Connection upgrade and frame handling.
 * - internal/store: Persistence of the socket-id to user mapping.
 */

package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juliangm996/pluto-server-dlycop/internal/domain"
	"github.com/juliangm996/pluto-server-dlycop/internal/store"
)

const (
	writeTimeout = 10 * time.Second
	storeTimeout = 5 * time.Second
)

type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub tracks live websocket sessions keyed by socket id.
type Hub struct {
	repo     store.Repository
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewHub(repo store.Repository) *Hub {
	return &Hub{
		repo: repo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The browser client is served from the web application's
			// origin, which is not this process.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// ServeHTTP upgrades GET /ws?user_id=<uuid> into a tracked session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("level=warn component=ws_hub msg=\"websocket upgrade failed\" err=%v", err)
		return
	}

	socketID := uuid.NewString()

	saveCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.repo.SaveConnection(saveCtx, domain.Connection{SocketID: socketID, UserID: userID}); err != nil {
		log.Printf("level=error component=ws_hub msg=\"connection persist failed\" socket_id=%s err=%v", socketID, err)
		conn.Close()
		return
	}

	h.mu.Lock()
	h.sessions[socketID] = &session{conn: conn}
	h.mu.Unlock()

	log.Printf("level=info component=ws_hub msg=\"session opened\" socket_id=%s user_id=%s", socketID, userID)

	go h.readUntilClosed(socketID, conn)
}

// readUntilClosed drains (and discards) client frames so close and ping
// handling work, then tears the session down.
func (h *Hub) readUntilClosed(socketID string, conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.sessions, socketID)
	h.mu.Unlock()
	conn.Close()

	deleteCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.repo.DeleteConnection(deleteCtx, socketID); err != nil {
		log.Printf("level=warn component=ws_hub msg=\"connection row cleanup failed\" socket_id=%s err=%v", socketID, err)
	}

	log.Printf("level=info component=ws_hub msg=\"session closed\" socket_id=%s", socketID)
}

// Emit writes a notification entity to the session, if it is still live on
// this process. Unknown socket ids are a no-op.
func (h *Hub) Emit(socketID string, notification *domain.Notification) {
	h.mu.RLock()
	sess, ok := h.sessions[socketID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	_ = sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sess.conn.WriteJSON(map[string]any{"entity": notification}); err != nil {
		log.Printf("level=warn component=ws_hub msg=\"notification push failed\" socket_id=%s err=%v", socketID, err)
	}
}

// Shutdown closes every live session; used during graceful process stop.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for socketID, sess := range h.sessions {
		sess.conn.Close()
		delete(h.sessions, socketID)
	}
}
