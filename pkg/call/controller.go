// Package call drives one voice consultation: it owns the transport handle,
// the elapsed-time counter and the transcript, and publishes a Snapshot of
// them to a Presenter after every change.
package call

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/sessionclient"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
	"github.com/echodoc-ai/echodoc/pkg/voice"
)

const (
	DefaultRecentLimit   = 4
	DefaultDashboardPath = "/dashboard"

	ReportReadyMessage  = "Your report is generated!"
	ReportFailedMessage = "Report generation failed"
)

var (
	ErrCallInProgress = errors.New("call: a call is already in progress")
	ErrClosed         = errors.New("call: controller closed")
	ErrNoTransport    = errors.New("call: transport factory returned nil")
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseActive
	PhaseEnding
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseActive:
		return "active"
	case PhaseEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// DetailState is the load state of the session shown on the call page.
type DetailState int

const (
	DetailLoading DetailState = iota
	DetailLoaded
	DetailNotFound
	DetailFailed
)

func (s DetailState) String() string {
	switch s {
	case DetailLoading:
		return "loading"
	case DetailLoaded:
		return "loaded"
	case DetailNotFound:
		return "not_found"
	case DetailFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionFetcher loads the session a call belongs to.
type SessionFetcher interface {
	Fetch(ctx context.Context, sessionID string) sessionclient.Result
}

// Reporter asks the backend to enrich the session with a report built from
// the finished transcript.
type Reporter interface {
	GenerateReport(ctx context.Context, sessionID string, transcript []sessions.Utterance) (sessions.Record, error)
}

// Snapshot is the presenter-facing view of the controller.
type Snapshot struct {
	Phase          Phase
	Connected      bool
	ElapsedSeconds int
	Elapsed        string
	LiveRole       string
	LivePreview    string
	Transcript     []Entry
	Recent         []Entry
	Detail         DetailState
	Session        *sessions.Record
	DetailError    string
	LastError      string
}

type ToastKind int

const (
	ToastSuccess ToastKind = iota
	ToastError
)

type Toast struct {
	Kind    ToastKind
	Message string
}

// Presenter receives the controller's side effects. Calls are made outside
// the controller lock but Render must not call back into the controller
// synchronously.
type Presenter interface {
	Render(Snapshot)
	Toast(Toast)
	Navigate(path string)
}

type nopPresenter struct{}

func (nopPresenter) Render(Snapshot) {}
func (nopPresenter) Toast(Toast) {}
func (nopPresenter) Navigate(string) {}

type Config struct {
	SessionID   string
	AssistantID string

	// NewTransport builds a fresh transport for every call.
	NewTransport func() voice.Transport

	Sessions  SessionFetcher
	Reports   Reporter
	Presenter Presenter
	Logger    *slog.Logger

	Scheduler     Scheduler
	TickInterval  time.Duration
	RecentLimit   int
	DashboardPath string
}

// Controller is the call session state machine. Transport callbacks, timer
// ticks and commands are serialized under one lock.
type Controller struct {
	cfg       Config
	logger    *slog.Logger
	presenter Presenter

	renderMu sync.Mutex

	mu         sync.Mutex
	phase      Phase
	transport  voice.Transport
	subs       []voice.Subscription
	callGen    uint64
	timer      *Timer
	transcript *Aggregator
	detail     DetailState
	session    *sessions.Record
	detailErr  string
	lastErr    string
	closed     bool
}

func NewController(cfg Config) *Controller {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	if strings.TrimSpace(cfg.DashboardPath) == "" {
		cfg.DashboardPath = DefaultDashboardPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	presenter := cfg.Presenter
	if presenter == nil {
		presenter = nopPresenter{}
	}
	return &Controller{
		cfg:        cfg,
		logger:     logger.With("session_id", cfg.SessionID),
		presenter:  presenter,
		timer:      NewTimer(cfg.Scheduler, cfg.TickInterval),
		transcript: NewAggregator(),
		detail:     DetailLoading,
	}
}

// Mount loads the session details and publishes the result.
func (c *Controller) Mount(ctx context.Context) {
	var res sessionclient.Result
	if c.cfg.Sessions == nil {
		res = sessionclient.Result{Status: sessionclient.StatusFailed, Err: errors.New("no session source configured")}
	} else {
		res = c.cfg.Sessions.Fetch(ctx, c.cfg.SessionID)
	}

	c.mu.Lock()
	switch res.Status {
	case sessionclient.StatusOK:
		rec := res.Record
		c.session = &rec
		c.detail = DetailLoaded
		c.detailErr = ""
	case sessionclient.StatusNotFound:
		c.session = nil
		c.detail = DetailNotFound
		c.detailErr = "session not found"
	default:
		c.session = nil
		c.detail = DetailFailed
		c.detailErr = errText(res.Err, "failed to load session")
	}
	detail := c.detail
	c.mu.Unlock()

	if detail != DetailLoaded {
		c.logger.Warn("session details unavailable", "state", detail.String(), "error", res.Err)
	}
	c.publish()
}

// StartCall opens a new transport and asks it to start. It only succeeds
// from the idle phase.
func (c *Controller) StartCall(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	if c.cfg.NewTransport == nil {
		c.mu.Unlock()
		return ErrNoTransport
	}
	stale, staleSubs := c.detachLocked()
	t := c.cfg.NewTransport()
	if t == nil {
		c.mu.Unlock()
		release(c.logger, stale, staleSubs)
		return ErrNoTransport
	}
	c.callGen++
	gen := c.callGen
	c.transport = t
	c.subs = c.subscribe(t, gen)
	c.phase = PhaseStarting
	c.lastErr = ""
	c.mu.Unlock()

	release(c.logger, stale, staleSubs)
	c.logger.Info("call starting", "assistant_id", c.cfg.AssistantID)
	c.publish()

	if err := t.Start(ctx, c.cfg.AssistantID); err != nil {
		c.mu.Lock()
		var subs []voice.Subscription
		if c.transport == t {
			t, subs = c.detachLocked()
			c.callGen++
			c.phase = PhaseIdle
			c.lastErr = err.Error()
		} else {
			t = nil
		}
		c.mu.Unlock()
		release(c.logger, t, subs)
		c.logger.Error("call start failed", "error", err)
		c.publish()
		return err
	}
	return nil
}

// EndCall stops the call, requests the report and sends the user back to the
// dashboard. It does nothing when no transport is assigned.
func (c *Controller) EndCall(ctx context.Context) error {
	c.mu.Lock()
	if c.transport == nil {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseEnding
	t, subs := c.transport, c.subs
	c.transport, c.subs = nil, nil
	c.callGen++
	c.timer.Stop()
	transcript := c.transcript.Entries()
	c.mu.Unlock()
	c.publish()

	if err := t.Stop(); err != nil {
		c.logger.Warn("transport stop failed", "error", err)
	}
	for _, sub := range subs {
		t.Off(sub)
	}

	toast := Toast{Kind: ToastSuccess, Message: ReportReadyMessage}
	var reportErr error
	if c.cfg.Reports != nil {
		if _, err := c.cfg.Reports.GenerateReport(ctx, c.cfg.SessionID, transcript); err != nil {
			reportErr = err
			toast = Toast{Kind: ToastError, Message: ReportFailedMessage}
			c.logger.Error("report generation failed", "error", err)
		}
	}

	c.mu.Lock()
	if c.phase == PhaseEnding {
		c.phase = PhaseIdle
	}
	if reportErr != nil {
		c.lastErr = reportErr.Error()
	}
	c.mu.Unlock()

	c.logger.Info("call ended", "entries", len(transcript))
	c.publish()
	c.presenter.Toast(toast)
	c.presenter.Navigate(c.cfg.DashboardPath)
	return reportErr
}

// Close releases the timer and any transport without toasting or
// navigating. Further StartCall calls fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.timer.Stop()
	c.callGen++
	t, subs := c.detachLocked()
	c.phase = PhaseIdle
	c.mu.Unlock()
	release(c.logger, t, subs)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:          c.phase,
		Connected:      c.phase == PhaseActive,
		ElapsedSeconds: c.timer.Elapsed(),
		Elapsed:        FormatTime(c.timer.Elapsed()),
		LiveRole:       c.transcript.LiveRole(),
		LivePreview:    c.transcript.LivePreview(),
		Transcript:     c.transcript.Entries(),
		Recent:         c.transcript.Recent(c.cfg.RecentLimit),
		Detail:         c.detail,
		DetailError:    c.detailErr,
		LastError:      c.lastErr,
	}
	if c.session != nil {
		rec := *c.session
		snap.Session = &rec
	}
	return snap
}

// publish renders the current state. renderMu keeps renders ordered.
func (c *Controller) publish() {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	c.presenter.Render(c.Snapshot())
}

func (c *Controller) subscribe(t voice.Transport, gen uint64) []voice.Subscription {
	return []voice.Subscription{
		t.On(voice.EventCallStart, func(voice.Event) { c.onCallStart(gen) }),
		t.On(voice.EventCallEnd, func(voice.Event) { c.onCallEnd(gen) }),
		t.On(voice.EventSpeechStart, func(ev voice.Event) { c.onTranscript(gen, ev) }),
		t.On(voice.EventSpeechEnd, func(ev voice.Event) { c.onTranscript(gen, ev) }),
		t.On(voice.EventMessage, func(ev voice.Event) { c.onTranscript(gen, ev) }),
		t.On(voice.EventError, func(ev voice.Event) { c.onError(gen, ev) }),
	}
}

func (c *Controller) onCallStart(gen uint64) {
	c.mu.Lock()
	if gen != c.callGen {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseActive
	c.timer.Start(c.tick)
	c.mu.Unlock()

	c.logger.Info("call started")
	c.publish()
}

func (c *Controller) onCallEnd(gen uint64) {
	c.mu.Lock()
	if gen != c.callGen {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseIdle
	c.timer.Stop()
	elapsed := c.timer.Elapsed()
	c.mu.Unlock()

	c.logger.Info("call ended by transport", "elapsed", FormatTime(elapsed))
	c.publish()
}

func (c *Controller) onTranscript(gen uint64, ev voice.Event) {
	c.mu.Lock()
	if gen != c.callGen {
		c.mu.Unlock()
		return
	}
	changed := c.transcript.Apply(ev)
	c.mu.Unlock()

	if changed {
		c.publish()
	}
}

// onError records a transport error. A failure before call-start means the
// connection never came up, so the transport is released and the phase
// returns to idle.
func (c *Controller) onError(gen uint64, ev voice.Event) {
	c.mu.Lock()
	if gen != c.callGen {
		c.mu.Unlock()
		return
	}
	c.lastErr = errText(ev.Err, "voice transport error")
	var (
		t    voice.Transport
		subs []voice.Subscription
	)
	if c.phase == PhaseStarting {
		t, subs = c.detachLocked()
		c.callGen++
		c.phase = PhaseIdle
	}
	c.mu.Unlock()

	c.logger.Error("voice transport error", "error", ev.Err)
	release(c.logger, t, subs)
	c.publish()
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	counted := c.timer.Tick(gen)
	c.mu.Unlock()
	if counted {
		c.publish()
	}
}

func (c *Controller) detachLocked() (voice.Transport, []voice.Subscription) {
	t, subs := c.transport, c.subs
	c.transport, c.subs = nil, nil
	return t, subs
}

func release(logger *slog.Logger, t voice.Transport, subs []voice.Subscription) {
	if t == nil {
		return
	}
	if err := t.Stop(); err != nil {
		logger.Warn("transport stop failed", "error", err)
	}
	for _, sub := range subs {
		t.Off(sub)
	}
}

func errText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
