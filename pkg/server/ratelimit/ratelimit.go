// Package ratelimit budgets API traffic per session owner.
//
// Every API call draws from the owner's request budget. Report generation
// additionally draws from a separate, much smaller report budget since each
// such call reaches the language model. A request is admitted only when every
// budget it draws from has room; nothing is debited otherwise.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Action classifies a request by the budgets it draws from.
type Action int

const (
	// ActionExempt requests are never limited.
	ActionExempt Action = iota
	// ActionAPI requests draw from the request budget.
	ActionAPI
	// ActionReport requests draw from the request and report budgets.
	ActionReport
)

// ReportPath is the route whose POSTs generate a medical report.
const ReportPath = "/api/medical-report"

// Classify maps a request line to the budgets it is charged against.
func Classify(method, path string) Action {
	switch {
	case method == http.MethodOptions, path == "/healthz", path == "/readyz":
		return ActionExempt
	case method == http.MethodPost && path == ReportPath:
		return ActionReport
	default:
		return ActionAPI
	}
}

// Budget is a refill rate in events per second with a burst allowance.
// A zero Budget is unlimited.
type Budget struct {
	Rate  float64
	Burst int
}

func (b Budget) limited() bool { return b.Rate > 0 && b.Burst > 0 }

func (b Budget) interval() time.Duration {
	return time.Duration(float64(time.Second) / b.Rate)
}

// PerMinute builds a Budget from a per-minute allowance.
func PerMinute(n float64, burst int) Budget {
	return Budget{Rate: n / 60, Burst: burst}
}

type Config struct {
	Requests Budget
	Reports  Budget

	// MaxInFlight caps concurrent requests per owner. Zero disables the cap.
	MaxInFlight int

	// Bounds for the owner table (single-process only).
	MaxOwners int
	IdleTTL   time.Duration
}

// Exhausted names the budget that refused a request.
type Exhausted string

const (
	ExhaustedRequests Exhausted = "requests"
	ExhaustedReports  Exhausted = "reports"
	ExhaustedInFlight Exhausted = "in_flight"
)

// Verdict is the outcome of Admit. Callers must call Done on an admitted
// verdict once the request finishes.
type Verdict struct {
	Allowed    bool
	Exhausted  Exhausted
	RetryAfter int // seconds

	done func()
}

// Done releases the in-flight slot held by v. It is safe to call more than
// once and on refused verdicts.
func (v *Verdict) Done() {
	if v == nil || v.done == nil {
		return
	}
	v.done()
	v.done = nil
}

type Limiter struct {
	cfg Config

	mu     sync.Mutex
	owners map[string]*owner
}

type owner struct {
	mu       sync.Mutex
	requests gcra
	reports  gcra
	inFlight int
	seen     time.Time
}

// gcra tracks the theoretical arrival time of the next conforming event.
type gcra struct {
	tat time.Time
}

// reserve reports the arrival time to store if an event at now conforms to
// b, or how long the caller must wait.
func (g gcra) reserve(now time.Time, b Budget) (time.Time, time.Duration, bool) {
	step := b.interval()
	tat := g.tat
	if tat.Before(now) {
		tat = now
	}
	earliest := tat.Add(-time.Duration(b.Burst-1) * step)
	if now.Before(earliest) {
		return g.tat, earliest.Sub(now), false
	}
	return tat.Add(step), 0, true
}

func New(cfg Config) *Limiter {
	if cfg.MaxOwners <= 0 {
		cfg.MaxOwners = 10_000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &Limiter{cfg: cfg, owners: make(map[string]*owner)}
}

// Enabled reports whether any limit is configured.
func (l *Limiter) Enabled() bool {
	if l == nil {
		return false
	}
	return l.cfg.Requests.limited() || l.cfg.Reports.limited() || l.cfg.MaxInFlight > 0
}

// OwnerKey hashes a session owner's email so raw addresses never become map
// keys or log fields.
func OwnerKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "u_" + hex.EncodeToString(sum[:16])
}

// AddrKey is the key for callers without a verified owner.
func AddrKey(ip string) string {
	return "ip_" + ip
}

// Admit charges one request of kind act to key.
func (l *Limiter) Admit(key string, act Action, now time.Time) Verdict {
	if act == ActionExempt || !l.Enabled() {
		return Verdict{Allowed: true}
	}
	if key == "" {
		key = "anonymous"
	}
	o := l.owner(key, now)

	o.mu.Lock()
	defer o.mu.Unlock()

	nextReq, nextRep := o.requests.tat, o.reports.tat
	if b := l.cfg.Requests; b.limited() {
		tat, wait, ok := o.requests.reserve(now, b)
		if !ok {
			return refused(ExhaustedRequests, wait)
		}
		nextReq = tat
	}
	if b := l.cfg.Reports; act == ActionReport && b.limited() {
		tat, wait, ok := o.reports.reserve(now, b)
		if !ok {
			return refused(ExhaustedReports, wait)
		}
		nextRep = tat
	}
	if l.cfg.MaxInFlight > 0 && o.inFlight >= l.cfg.MaxInFlight {
		return refused(ExhaustedInFlight, time.Second)
	}

	o.requests.tat, o.reports.tat = nextReq, nextRep
	if l.cfg.MaxInFlight <= 0 {
		return Verdict{Allowed: true}
	}
	o.inFlight++
	return Verdict{Allowed: true, done: func() {
		o.mu.Lock()
		o.inFlight--
		o.mu.Unlock()
	}}
}

func refused(which Exhausted, wait time.Duration) Verdict {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return Verdict{Exhausted: which, RetryAfter: secs}
}

func (l *Limiter) owner(key string, now time.Time) *owner {
	l.mu.Lock()
	defer l.mu.Unlock()

	if o, ok := l.owners[key]; ok {
		o.seen = now
		return o
	}
	if len(l.owners) >= l.cfg.MaxOwners {
		l.evictLocked(now)
	}
	o := &owner{seen: now}
	l.owners[key] = o
	return o
}

// evictLocked drops idle owners, then the least recently seen one if the
// table is still full.
func (l *Limiter) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, o := range l.owners {
		if now.Sub(o.seen) > l.cfg.IdleTTL {
			delete(l.owners, k)
			continue
		}
		if oldestKey == "" || o.seen.Before(oldest) {
			oldestKey, oldest = k, o.seen
		}
	}
	if len(l.owners) >= l.cfg.MaxOwners && oldestKey != "" {
		delete(l.owners, oldestKey)
	}
}
