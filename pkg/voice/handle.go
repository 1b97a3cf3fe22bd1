// Package voice connects to the hosted voice assistant and turns its
// websocket stream into call lifecycle and transcript events.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultWriteTimeout     = 2 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("voice: handle already started")
	ErrStopped        = errors.New("voice: handle stopped")
)

// Transport is the contract the call controller drives. Subscription methods
// are always available; implementations must accept them before Start and
// after Stop.
type Transport interface {
	Start(ctx context.Context, assistantID string) error
	Stop() error
	On(name EventName, fn Handler) Subscription
	Off(sub Subscription)
	OffAll(name EventName)
}

type Config struct {
	// BaseURL is the voice service websocket root (ws:// or wss://; http(s)
	// is rewritten).
	BaseURL string
	// APIKey is the public key sent as a bearer token.
	APIKey string

	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *slog.Logger
}

// Handle is one connection to the voice service. A Handle is single use:
// once stopped it cannot be started again.
type Handle struct {
	cfg     Config
	logger  *slog.Logger
	emitter Emitter

	mu      sync.Mutex
	started bool
	stopped bool
	conn    *websocket.Conn
	cancel  context.CancelFunc
	done    chan struct{}

	writeMu sync.Mutex
}

var _ Transport = (*Handle)(nil)

func NewHandle(cfg Config) *Handle {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{cfg: cfg, logger: logger, done: make(chan struct{})}
}

func (h *Handle) On(name EventName, fn Handler) Subscription {
	if h == nil {
		return Subscription{}
	}
	return h.emitter.On(name, fn)
}

func (h *Handle) Off(sub Subscription) {
	if h == nil {
		return
	}
	h.emitter.Off(sub)
}

func (h *Handle) OffAll(name EventName) {
	if h == nil {
		return
	}
	h.emitter.OffAll(name)
}

// Done is closed once the connection goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.done
}

// Start begins connecting in the background and returns immediately.
// Connection failures are reported as EventError.
func (h *Handle) Start(ctx context.Context, assistantID string) error {
	if h == nil {
		return fmt.Errorf("voice: handle must not be nil")
	}
	assistantID = strings.TrimSpace(assistantID)
	if assistantID == "" {
		return fmt.Errorf("voice: assistant id must not be empty")
	}
	endpoint, err := callEndpoint(h.cfg.BaseURL, assistantID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return ErrStopped
	}
	if h.started {
		h.mu.Unlock()
		return ErrAlreadyStarted
	}
	h.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel
	h.mu.Unlock()

	go h.run(ctx, runCtx, endpoint, assistantID)
	return nil
}

// Stop ends the call. It is safe to call repeatedly and before Start.
func (h *Handle) Stop() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	conn := h.conn
	cancel := h.cancel
	started := h.started
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		close(h.done)
	}
	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(h.cfg.WriteTimeout)
	h.writeMu.Lock()
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteJSON(ClientControl{Type: "control", Op: controlEndCall})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	h.writeMu.Unlock()
	return conn.Close()
}

func (h *Handle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// dispatch drops events once the handle is stopped so queued frames never
// reach a call that has already ended.
func (h *Handle) dispatch(ev Event) {
	if h.isStopped() {
		return
	}
	h.emitter.Emit(ev)
}

func (h *Handle) run(dialParent, runCtx context.Context, endpoint, assistantID string) {
	defer close(h.done)

	dialCtx, cancelDial := context.WithTimeout(dialParent, h.cfg.HandshakeTimeout)
	stopDial := context.AfterFunc(runCtx, cancelDial)
	defer stopDial()
	defer cancelDial()

	dialer := h.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	headers := make(http.Header)
	if key := strings.TrimSpace(h.cfg.APIKey); key != "" {
		headers.Set("Authorization", "Bearer "+key)
	}

	conn, resp, err := dialer.DialContext(dialCtx, endpoint, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("voice: dial failed (status %d): %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("voice: dial failed: %w", err)
		}
		h.logger.Warn("voice connection failed", "assistant_id", assistantID, "error", err)
		h.dispatch(Event{Name: EventError, Err: err})
		return
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.conn = conn
	h.mu.Unlock()

	h.logger.Debug("voice connection open", "assistant_id", assistantID)
	h.readLoop(conn)
}

func (h *Handle) readLoop(conn *websocket.Conn) {
	callEnded := false
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if h.isStopped() {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.dispatch(Event{Name: EventError, Err: fmt.Errorf("voice: read: %w", err)})
			}
			// The service hung up without saying so; the call is over either way.
			if !callEnded {
				h.dispatch(Event{Name: EventCallEnd})
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ev, err := DecodeServerFrame(data)
		if err != nil {
			h.logger.Warn("voice frame dropped", "error", err)
			continue
		}
		if ev.Name == EventCallEnd {
			callEnded = true
		}
		h.dispatch(ev)
	}
}

func callEndpoint(base, assistantID string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("voice: base url must not be empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("voice: invalid base url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("voice: unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/call"
	q := u.Query()
	q.Set("assistant_id", assistantID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
