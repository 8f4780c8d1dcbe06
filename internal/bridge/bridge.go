package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Novip1906/tasks-live/internal/auth"
	"github.com/Novip1906/tasks-live/internal/models"
	"github.com/Novip1906/tasks-live/internal/notify"
	"github.com/Novip1906/tasks-live/pkg/logging"
	"github.com/gorilla/websocket"
)

type State int32

const (
	StateAuthenticating State = iota
	StateBridging
	StateClosing
	StateClosed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateBridging:
		return "bridging"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Conn is the live client connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Subscription interface {
	Events() <-chan notify.Notification
	Close() error
}

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Claims, error)
}

type frame struct {
	kind int
	data []byte
	err  error
}

// Bridge serves one live connection. Only the Run loop writes to the
// connection, so frames go out in exactly the order the loop saw them.
type Bridge struct {
	log      *slog.Logger
	state    atomic.Int32
	username string
}

func New(log *slog.Logger) *Bridge {
	b := &Bridge{log: log}
	b.setState(StateAuthenticating)
	return b
}

func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) Username() string {
	return b.username
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
	b.log.Debug("bridge state", slog.String("state", s.String()))
}

// Authenticate checks the handshake token. On failure the bridge moves to
// StateRejected and must not be run.
func (b *Bridge) Authenticate(ctx context.Context, authn Authenticator, token string) error {
	claims, err := authn.Authenticate(ctx, token)
	if err != nil {
		b.setState(StateRejected)
		return err
	}
	b.username = claims.Subject
	b.log = b.log.With(slog.String("username", claims.Subject))
	return nil
}

// Run bridges sub onto conn until either side ends or ctx is cancelled.
// It always leaves conn and sub closed.
func (b *Bridge) Run(ctx context.Context, conn Conn, sub Subscription) {
	b.setState(StateBridging)

	frames := make(chan frame)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.read(conn, frames, done)
	}()

	b.loop(ctx, conn, sub, frames)

	b.setState(StateClosing)
	b.writeClose(conn)
	if err := sub.Close(); err != nil {
		b.log.Warn("subscription close failed", logging.Err(err))
	}
	close(done)
	conn.Close()
	wg.Wait()
	b.setState(StateClosed)
}

// Abort ends a connection that could not be bridged: one error frame, then
// a close frame.
func (b *Bridge) Abort(conn Conn, message string) {
	b.setState(StateClosing)
	b.sendError(conn, message)
	b.writeClose(conn)
	conn.Close()
	b.setState(StateClosed)
}

func (b *Bridge) read(conn Conn, frames chan<- frame, done <-chan struct{}) {
	for {
		kind, data, err := conn.ReadMessage()
		select {
		case frames <- frame{kind: kind, data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (b *Bridge) loop(ctx context.Context, conn Conn, sub Subscription, frames <-chan frame) {
	for {
		select {
		case <-ctx.Done():
			b.log.Debug("bridge cancelled")
			return
		case f := <-frames:
			if !b.handleFrame(conn, f) {
				return
			}
		case n, ok := <-sub.Events():
			if !ok {
				b.sendError(conn, "notification stream closed")
				return
			}
			if !b.handleNotification(conn, n) {
				return
			}
		}
	}
}

// handleFrame reports whether the connection stays open.
func (b *Bridge) handleFrame(conn Conn, f frame) bool {
	if f.err != nil {
		var closeErr *websocket.CloseError
		if errors.As(f.err, &closeErr) {
			b.log.Debug("client closed connection", slog.Int("code", closeErr.Code))
		} else {
			b.log.Warn("connection read failed", logging.Err(f.err))
		}
		return false
	}

	if f.kind != websocket.TextMessage {
		return true
	}

	msg, err := models.UnmarshalClientMessage(f.data)
	if err != nil {
		b.log.Warn("malformed client message", logging.Err(err))
		b.sendError(conn, "invalid message: "+err.Error())
		return false
	}

	switch msg.(type) {
	case models.RefreshJWT:
		// Accepted but not acted upon yet.
		b.log.Info("jwt refresh requested")
		return true
	default:
		b.sendError(conn, "unsupported message")
		return false
	}
}

func (b *Bridge) handleNotification(conn Conn, n notify.Notification) bool {
	if n.Err != nil {
		b.log.Error("undecodable notification", logging.Err(n.Err))
		b.sendError(conn, "failed to parse notification: "+n.Err.Error())
		return false
	}

	data, err := models.MarshalEvent(n.Event)
	if err != nil {
		b.log.Error("encode notification failed", logging.Err(err))
		b.sendError(conn, "failed to encode notification")
		return false
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.log.Warn("notification send failed", logging.Err(err))
		return false
	}
	return true
}

func (b *Bridge) sendError(conn Conn, message string) {
	if err := conn.WriteMessage(websocket.TextMessage, models.MarshalError(message)); err != nil {
		b.log.Warn("error frame send failed", logging.Err(err))
	}
}

func (b *Bridge) writeClose(conn Conn) {
	data := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteMessage(websocket.CloseMessage, data); err != nil {
		b.log.Debug("close frame send failed", logging.Err(err))
	}
}
