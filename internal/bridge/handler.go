package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	appErrors "github.com/Novip1906/tasks-live/internal/errors"
	"github.com/Novip1906/tasks-live/internal/notify"
	"github.com/Novip1906/tasks-live/pkg/logging"
	"github.com/gorilla/websocket"
)

type Subscriber interface {
	Subscribe(ctx context.Context, owner string) (*notify.Subscription, error)
}

// Handler upgrades GET /websocket?jwt=<token> into a bridged live
// connection. Bridges outlive their HTTP request, so they run on the
// handler's base context; cancel it and call Wait to drain them.
type Handler struct {
	ctx      context.Context
	authn    Authenticator
	bus      Subscriber
	log      *slog.Logger
	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

func NewHandler(ctx context.Context, authn Authenticator, bus Subscriber, log *slog.Logger) *Handler {
	return &Handler{
		ctx:   ctx,
		authn: authn,
		bus:   bus,
		log:   log.With(slog.String("component", "bridge")),
		upgrader: websocket.Upgrader{
			// Credentials come from the URL, never from cookies.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		slog.Uint64("conn_id", h.nextID.Add(1)),
		slog.String("remote_addr", r.RemoteAddr),
	)

	if !h.begin() {
		log.Info("connection refused while shutting down")
		respondError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	defer h.wg.Done()

	b := New(log)
	if err := b.Authenticate(r.Context(), h.authn, tokenFromRequest(r)); err != nil {
		log.Info("connection rejected", logging.Err(err))
		reject(w, err)
		return
	}

	// Subscribe before the upgrade so that events published after the
	// client sees the handshake complete are delivered.
	sub, subErr := h.bus.Subscribe(h.ctx, b.Username())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", logging.Err(err))
		if sub != nil {
			sub.Close()
		}
		return
	}

	if subErr != nil {
		log.Error("subscribe failed", logging.Err(subErr))
		b.Abort(conn, "failed to subscribe to notifications")
		return
	}

	log.Info("live connection opened", slog.String("username", b.Username()))
	b.Run(h.ctx, conn, sub)
	log.Info("live connection closed", slog.String("username", b.Username()))
}

// begin registers a connection attempt unless the handler is draining or
// its base context is done.
func (h *Handler) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining || h.ctx.Err() != nil {
		return false
	}
	h.wg.Add(1)
	return true
}

// Wait stops new connections and blocks until every bridge started by this
// handler has finished.
func (h *Handler) Wait() {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()
	h.wg.Wait()
}

func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("jwt"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func reject(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	switch {
	case errors.Is(err, appErrors.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, appErrors.ErrMissingFields):
		status = http.StatusBadRequest
	}

	respondError(w, status, err.Error())
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
