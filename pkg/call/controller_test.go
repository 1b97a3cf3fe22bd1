package call

import (
	"context"
	"errors"
	"testing"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/sessionclient"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
	"github.com/echodoc-ai/echodoc/pkg/voice"
)

func TestController_StartCallSubscribesAndStarts(t *testing.T) {
	h := newHarness()
	if err := h.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	tr := h.transport()
	if tr == nil || tr.starts != 1 || tr.assistantID != "asst-1" {
		t.Fatalf("transport=%+v", tr)
	}
	if n := tr.handlerCount(); n != 6 {
		t.Fatalf("handlers=%d", n)
	}
	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseStarting || snap.Connected {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestController_CallStartRunsTimer(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	h.transport().emit(voice.EventCallStart)

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseActive || !snap.Connected || snap.ElapsedSeconds != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
	h.sched.fireActive(3)
	snap = h.presenter.last()
	if snap.ElapsedSeconds != 3 || snap.Elapsed != "00:00:03" {
		t.Fatalf("elapsed=%d %q", snap.ElapsedSeconds, snap.Elapsed)
	}
}

func TestController_NoTickObservedAfterCallEnd(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	tr := h.transport()
	tr.emit(voice.EventCallStart)
	h.sched.fireActive(2)
	tr.emit(voice.EventCallEnd)

	rendersAtEnd := len(h.presenter.renders)
	h.sched.fireAll(5)

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseIdle || snap.Connected {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.ElapsedSeconds != 2 {
		t.Fatalf("elapsed=%d, want frozen at 2", snap.ElapsedSeconds)
	}
	if len(h.presenter.renders) != rendersAtEnd {
		t.Fatalf("renders after call-end: %d -> %d", rendersAtEnd, len(h.presenter.renders))
	}
	if h.sched.active() != 0 {
		t.Fatalf("active ticks=%d", h.sched.active())
	}
}

func TestController_StartCallGuard(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	if err := h.ctrl.StartCall(context.Background()); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("starting: err=%v", err)
	}
	h.transport().emit(voice.EventCallStart)
	if err := h.ctrl.StartCall(context.Background()); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("active: err=%v", err)
	}
	if len(h.transports) != 1 {
		t.Fatalf("transports=%d", len(h.transports))
	}
}

func TestController_RestartReleasesEndedTransportAndResetsElapsed(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	first := h.transport()
	first.emit(voice.EventCallStart)
	h.sched.fireActive(4)
	first.emit(voice.EventCallEnd)

	if err := h.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if first.stopCount() != 1 || first.handlerCount() != 0 {
		t.Fatalf("ended transport not released: stops=%d handlers=%d", first.stopCount(), first.handlerCount())
	}
	second := h.transport()
	if second == first {
		t.Fatal("expected a fresh transport")
	}
	second.emit(voice.EventCallStart)
	if got := h.ctrl.Snapshot().ElapsedSeconds; got != 0 {
		t.Fatalf("elapsed=%d, want 0 after call-start", got)
	}

	first.emit(voice.EventCallEnd)
	if h.ctrl.Snapshot().Phase != PhaseActive {
		t.Fatal("event from the released transport changed the phase")
	}
}

func TestController_TranscriptFlowsIntoSnapshot(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	tr := h.transport()
	tr.emit(voice.EventCallStart)

	tr.transcript("user", voice.TranscriptPartial, "Hel")
	tr.transcript("user", voice.TranscriptPartial, "Hello")
	if snap := h.presenter.last(); snap.LivePreview != "Hello" || snap.LiveRole != "user" {
		t.Fatalf("snapshot=%+v", snap)
	}
	tr.transcript("user", voice.TranscriptFinal, "Hello")
	for _, text := range []string{"a", "b", "c", "d"} {
		tr.transcript("assistant", voice.TranscriptFinal, text)
	}

	snap := h.presenter.last()
	if len(snap.Transcript) != 5 {
		t.Fatalf("transcript=%+v", snap.Transcript)
	}
	if len(snap.Recent) != DefaultRecentLimit || snap.Recent[0].Text != "a" {
		t.Fatalf("recent=%+v", snap.Recent)
	}
	if snap.LivePreview != "" || snap.LiveRole != "" {
		t.Fatalf("live state not cleared: %+v", snap)
	}
}

func TestController_EndCallWithoutHandleIsNoop(t *testing.T) {
	h := newHarness()
	if err := h.ctrl.EndCall(context.Background()); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if len(h.presenter.toasts) != 0 || len(h.presenter.navigated) != 0 || len(h.presenter.renders) != 0 {
		t.Fatalf("presenter saw %d toasts, %d navigations, %d renders",
			len(h.presenter.toasts), len(h.presenter.navigated), len(h.presenter.renders))
	}
	if h.reporter.calls != 0 {
		t.Fatal("report requested without a call")
	}
}

func TestController_EndCallTearsDownAndNavigates(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	tr := h.transport()
	tr.emit(voice.EventCallStart)
	tr.transcript("user", voice.TranscriptFinal, "my head hurts")
	h.sched.fireActive(2)

	if err := h.ctrl.EndCall(context.Background()); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if tr.stopCount() != 1 || tr.handlerCount() != 0 {
		t.Fatalf("stops=%d handlers=%d", tr.stopCount(), tr.handlerCount())
	}
	if h.sched.active() != 0 {
		t.Fatal("timer still scheduled")
	}
	if h.reporter.calls != 1 || h.reporter.sessionID != "sess-1" || len(h.reporter.transcript) != 1 {
		t.Fatalf("reporter=%+v", h.reporter)
	}
	if len(h.presenter.toasts) != 1 || h.presenter.toasts[0] != (Toast{Kind: ToastSuccess, Message: ReportReadyMessage}) {
		t.Fatalf("toasts=%+v", h.presenter.toasts)
	}
	if len(h.presenter.navigated) != 1 || h.presenter.navigated[0] != "/dashboard" {
		t.Fatalf("navigated=%v", h.presenter.navigated)
	}

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseIdle || snap.ElapsedSeconds != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}

	tr.transcript("user", voice.TranscriptFinal, "late")
	if got := len(h.ctrl.Snapshot().Transcript); got != 1 {
		t.Fatalf("event after EndCall was applied, transcript len=%d", got)
	}
	if err := h.ctrl.EndCall(context.Background()); err != nil || len(h.presenter.toasts) != 1 {
		t.Fatalf("second EndCall: err=%v toasts=%d", err, len(h.presenter.toasts))
	}
}

func TestController_EndCallReportFailureIsVisible(t *testing.T) {
	h := newHarness()
	h.reporter.err = core.NewAPIError("model unavailable")
	_ = h.ctrl.StartCall(context.Background())
	h.transport().emit(voice.EventCallStart)

	err := h.ctrl.EndCall(context.Background())
	if err == nil {
		t.Fatal("expected report error")
	}
	if h.ctrl.Snapshot().LastError == "" {
		t.Fatal("LastError not set")
	}
	if len(h.presenter.toasts) != 1 || h.presenter.toasts[0].Kind != ToastError {
		t.Fatalf("toasts=%+v", h.presenter.toasts)
	}
	if len(h.presenter.navigated) != 1 {
		t.Fatalf("navigated=%v", h.presenter.navigated)
	}
}

func TestController_StartFailureReturnsToIdle(t *testing.T) {
	h := newHarness()
	h.ctrl.cfg.NewTransport = func() voice.Transport {
		t := &fakeTransport{startErr: voice.ErrStopped}
		h.transports = append(h.transports, t)
		return t
	}
	if err := h.ctrl.StartCall(context.Background()); !errors.Is(err, voice.ErrStopped) {
		t.Fatalf("err=%v", err)
	}
	tr := h.transport()
	if tr.stopCount() != 1 || tr.handlerCount() != 0 {
		t.Fatalf("stops=%d handlers=%d", tr.stopCount(), tr.handlerCount())
	}
	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseIdle || snap.LastError == "" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if err := h.ctrl.EndCall(context.Background()); err != nil || len(h.presenter.navigated) != 0 {
		t.Fatalf("EndCall after failed start: err=%v navigated=%v", err, h.presenter.navigated)
	}
}

func TestController_ConnectErrorBeforeCallStart(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	tr := h.transport()
	tr.Emit(voice.Event{Name: voice.EventError, Err: errors.New("dial refused")})

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseIdle || snap.LastError != "dial refused" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if tr.stopCount() != 1 {
		t.Fatalf("stops=%d", tr.stopCount())
	}
	if err := h.ctrl.StartCall(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestController_ErrorDuringCallKeepsPhase(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	tr := h.transport()
	tr.emit(voice.EventCallStart)
	tr.Emit(voice.Event{Name: voice.EventError, Err: errors.New("glitch")})

	snap := h.ctrl.Snapshot()
	if snap.Phase != PhaseActive || snap.LastError != "glitch" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestController_MountDetailStates(t *testing.T) {
	cases := []struct {
		name string
		res  sessionclient.Result
		want DetailState
	}{
		{"ok", sessionclient.Result{Status: sessionclient.StatusOK, Record: sessions.Record{SessionID: "sess-1", Notes: "fever"}}, DetailLoaded},
		{"missing", sessionclient.Result{Status: sessionclient.StatusNotFound, Err: core.NewNotFoundError("session not found")}, DetailNotFound},
		{"failed", sessionclient.Result{Status: sessionclient.StatusFailed, Err: errors.New("boom")}, DetailFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &fakeSessions{res: tc.res}
			p := &recordingPresenter{}
			ctrl := NewController(Config{SessionID: "sess-1", Sessions: src, Presenter: p})
			if got := ctrl.Snapshot().Detail; got != DetailLoading {
				t.Fatalf("initial detail=%v", got)
			}
			ctrl.Mount(context.Background())

			snap := p.last()
			if snap.Detail != tc.want || src.calls != 1 {
				t.Fatalf("detail=%v calls=%d", snap.Detail, src.calls)
			}
			if tc.want == DetailLoaded {
				if snap.Session == nil || snap.Session.Notes != "fever" {
					t.Fatalf("session=%+v", snap.Session)
				}
			} else if snap.DetailError == "" || snap.Session != nil {
				t.Fatalf("snapshot=%+v", snap)
			}
		})
	}
}

func TestController_CloseReleasesWithoutSideEffects(t *testing.T) {
	h := newHarness()
	_ = h.ctrl.StartCall(context.Background())
	tr := h.transport()
	tr.emit(voice.EventCallStart)

	h.ctrl.Close()
	h.ctrl.Close()
	if tr.stopCount() != 1 || tr.handlerCount() != 0 || h.sched.active() != 0 {
		t.Fatalf("stops=%d handlers=%d ticks=%d", tr.stopCount(), tr.handlerCount(), h.sched.active())
	}
	if len(h.presenter.toasts) != 0 || len(h.presenter.navigated) != 0 {
		t.Fatal("Close must not toast or navigate")
	}
	if err := h.ctrl.StartCall(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v", err)
	}
}

func TestController_NilTransportFactory(t *testing.T) {
	ctrl := NewController(Config{NewTransport: func() voice.Transport { return nil }})
	if err := ctrl.StartCall(context.Background()); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("err=%v", err)
	}
	if ctrl.Snapshot().Phase != PhaseIdle {
		t.Fatal("phase changed")
	}
}
