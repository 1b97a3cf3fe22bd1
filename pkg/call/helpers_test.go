package call

import (
	"context"
	"sync"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/sessionclient"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
	"github.com/echodoc-ai/echodoc/pkg/voice"
)

type fakeTransport struct {
	voice.Emitter

	mu          sync.Mutex
	assistantID string
	startErr    error
	starts      int
	stops       int
}

func (f *fakeTransport) Start(_ context.Context, assistantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.assistantID = assistantID
	return f.startErr
}

func (f *fakeTransport) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeTransport) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeTransport) handlerCount() int {
	n := 0
	for _, name := range []voice.EventName{
		voice.EventCallStart, voice.EventCallEnd, voice.EventSpeechStart,
		voice.EventSpeechEnd, voice.EventMessage, voice.EventError,
	} {
		n += f.Count(name)
	}
	return n
}

func (f *fakeTransport) emit(name voice.EventName) {
	f.Emit(voice.Event{Name: name})
}

func (f *fakeTransport) transcript(role string, kind voice.TranscriptType, text string) {
	f.Emit(voice.Event{Name: voice.EventMessage, Message: &voice.Message{
		Type:           "transcript",
		Role:           role,
		TranscriptType: kind,
		Transcript:     text,
	}})
}

// manualScheduler fires ticks only when the test says so.
type manualScheduler struct {
	mu   sync.Mutex
	jobs []*manualJob
}

type manualJob struct {
	fn       func()
	canceled bool
}

func (s *manualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &manualJob{fn: fn}
	s.jobs = append(s.jobs, job)
	return func() {
		s.mu.Lock()
		job.canceled = true
		s.mu.Unlock()
	}
}

// fireAll runs every job that was ever scheduled, cancelled or not, to mimic a
// tick that was already in flight when its timer was stopped.
func (s *manualScheduler) fireAll(n int) {
	for i := 0; i < n; i++ {
		s.mu.Lock()
		jobs := append([]*manualJob(nil), s.jobs...)
		s.mu.Unlock()
		for _, job := range jobs {
			job.fn()
		}
	}
}

// fireActive runs only jobs that have not been cancelled.
func (s *manualScheduler) fireActive(n int) {
	for i := 0; i < n; i++ {
		s.mu.Lock()
		var jobs []*manualJob
		for _, job := range s.jobs {
			if !job.canceled {
				jobs = append(jobs, job)
			}
		}
		s.mu.Unlock()
		for _, job := range jobs {
			job.fn()
		}
	}
}

func (s *manualScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if !job.canceled {
			n++
		}
	}
	return n
}

type recordingPresenter struct {
	mu        sync.Mutex
	renders   []Snapshot
	toasts    []Toast
	navigated []string
}

func (p *recordingPresenter) Render(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renders = append(p.renders, s)
}

func (p *recordingPresenter) Toast(t Toast) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, t)
}

func (p *recordingPresenter) Navigate(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, path)
}

func (p *recordingPresenter) last() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.renders) == 0 {
		return Snapshot{}
	}
	return p.renders[len(p.renders)-1]
}

type fakeSessions struct {
	res   sessionclient.Result
	calls int
}

func (f *fakeSessions) Fetch(context.Context, string) sessionclient.Result {
	f.calls++
	return f.res
}

type fakeReporter struct {
	err        error
	sessionID  string
	transcript []sessions.Utterance
	calls      int
}

func (f *fakeReporter) GenerateReport(_ context.Context, sessionID string, transcript []sessions.Utterance) (sessions.Record, error) {
	f.calls++
	f.sessionID = sessionID
	f.transcript = transcript
	return sessions.Record{SessionID: sessionID}, f.err
}

type harness struct {
	ctrl       *Controller
	sched      *manualScheduler
	presenter  *recordingPresenter
	reporter   *fakeReporter
	transports []*fakeTransport
}

func newHarness() *harness {
	h := &harness{
		sched:     &manualScheduler{},
		presenter: &recordingPresenter{},
		reporter:  &fakeReporter{},
	}
	h.ctrl = NewController(Config{
		SessionID:   "sess-1",
		AssistantID: "asst-1",
		NewTransport: func() voice.Transport {
			t := &fakeTransport{}
			h.transports = append(h.transports, t)
			return t
		},
		Reports:   h.reporter,
		Presenter: h.presenter,
		Scheduler: h.sched,
	})
	return h
}

func (h *harness) transport() *fakeTransport {
	if len(h.transports) == 0 {
		return nil
	}
	return h.transports[len(h.transports)-1]
}
