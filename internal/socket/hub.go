package socket

import (
	"net/http"
	"sync"

	"github.com/angelmondragon/kiosk-backend/internal/events"
	authsession "github.com/angelmondragon/kiosk-backend/pkg/auth/session"
	"github.com/angelmondragon/kiosk-backend/pkg/channel"
	"github.com/angelmondragon/kiosk-backend/pkg/config"
	"github.com/angelmondragon/kiosk-backend/pkg/logger"
	"github.com/angelmondragon/kiosk-backend/pkg/metrics"
	"github.com/gorilla/websocket"
)

// Hub upgrades HTTP requests into socket sessions and tracks the live set so
// shutdown can close them deterministically. The transport client is shared
// across all sessions; the hub never builds its own.
type Hub struct {
	transport *channel.Client
	sessions  authsession.Resolver
	events    events.Service
	cfg       config.SocketConfig
	metrics   *metrics.SocketMetrics
	logg      *logger.Logger
	upgrader  websocket.Upgrader

	mu     sync.Mutex
	active map[*Session]struct{}
	closed bool
}

// NewHub wires the socket entry point.
func NewHub(transport *channel.Client, sessions authsession.Resolver, eventsService events.Service, cfg config.SocketConfig, socketMetrics *metrics.SocketMetrics, logg *logger.Logger) *Hub {
	return &Hub{
		transport: transport,
		sessions:  sessions,
		events:    eventsService,
		cfg:       cfg,
		metrics:   socketMetrics,
		logg:      logg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		active: map[*Session]struct{}{},
	}
}

// ServeHTTP upgrades the request and blocks until the session ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logg.Warn(r.Context(), "socket upgrade failed")
		return
	}

	sess := newSession(conn, h.transport, h.sessions, h.events, h.cfg, h.metrics, h.logg)
	h.track(sess)
	defer h.untrack(sess)

	sess.Run(r.Context())
}

// Shutdown closes every live session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.active))
	for sess := range h.active {
		sessions = append(sessions, sess)
	}
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

func (h *Hub) track(sess *Session) {
	h.mu.Lock()
	h.active[sess] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) untrack(sess *Session) {
	h.mu.Lock()
	delete(h.active, sess)
	h.mu.Unlock()
}
