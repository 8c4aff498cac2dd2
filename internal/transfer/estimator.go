// Package transfer turns raw upload progress into what a person watching the
// upload sees: a percent that only moves forward, a smoothed throughput and an
// ETA that counts down once per second.
package transfer

import (
	"math"
	"time"

	"vidshare/internal/admission"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseFinalizing Phase = "finalizing"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
)

// minThroughput keeps ETA finite while the link is stalled (bytes per second).
const minThroughput = 1.0

// Options configure both the estimator and the session that drives it.
type Options struct {
	Policy            admission.Policy
	SampleWindow      int
	SampleInterval    time.Duration
	TickInterval      time.Duration
	UploadCap         float64
	FinalizeCreepRate float64
	FinalizeCap       float64
}

func DefaultOptions() Options {
	return Options{
		Policy:            admission.DefaultPolicy(),
		SampleWindow:      10,
		SampleInterval:    200 * time.Millisecond,
		TickInterval:      time.Second,
		UploadCap:         98,
		FinalizeCreepRate: 0.2,
		FinalizeCap:       99,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SampleWindow <= 0 {
		o.SampleWindow = d.SampleWindow
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = d.SampleInterval
	}
	if o.TickInterval <= 0 {
		o.TickInterval = d.TickInterval
	}
	if o.FinalizeCap <= 0 || o.FinalizeCap >= 100 {
		o.FinalizeCap = d.FinalizeCap
	}
	if o.UploadCap <= 0 || o.UploadCap > o.FinalizeCap {
		o.UploadCap = min(d.UploadCap, o.FinalizeCap)
	}
	if o.FinalizeCreepRate < 0 {
		o.FinalizeCreepRate = 0
	}
	return o
}

// Snapshot is the observable state after each estimator step.
type Snapshot struct {
	Phase      Phase
	Percent    int
	Throughput float64       // bytes per second, moving average
	ETA        time.Duration // raw estimate from the latest sample
	Countdown  int           // displayed seconds left, -1 while unknown
	Sent       int64
	Total      int64
	Message    string
}

// Estimator is a pure state machine; callers pass the clock in. It is not
// safe for concurrent use.
type Estimator struct {
	opts Options

	phase   Phase
	percent float64
	sent    int64
	total   int64
	msg     string

	lastSent int64
	lastAt   time.Time

	rates  []float64
	next   int
	filled int

	eta        time.Duration
	etaKnown   bool
	baseline   int
	baselineAt time.Time
	countdown  int
}

func NewEstimator(opts Options) *Estimator {
	opts = opts.withDefaults()
	return &Estimator{
		opts:      opts,
		phase:     PhaseIdle,
		rates:     make([]float64, opts.SampleWindow),
		countdown: -1,
	}
}

// Begin resets the estimator and enters the uploading phase.
func (e *Estimator) Begin(total int64, now time.Time) {
	*e = Estimator{
		opts:      e.opts,
		phase:     PhaseUploading,
		total:     total,
		lastAt:    now,
		rates:     make([]float64, e.opts.SampleWindow),
		countdown: -1,
	}
}

// Sample records the cumulative byte count. Samples outside the uploading
// phase are ignored. Once every byte is sent the estimator moves on to
// finalizing.
func (e *Estimator) Sample(sent, total int64, now time.Time) {
	if e.phase == PhaseIdle {
		e.Begin(total, now)
	}
	if e.phase != PhaseUploading {
		return
	}
	if total > 0 {
		e.total = total
	}

	if dt := now.Sub(e.lastAt).Seconds(); dt > 0 && sent >= e.lastSent {
		e.push(float64(sent-e.lastSent) / dt)
		e.lastSent = sent
		e.lastAt = now
	}
	if sent > e.sent {
		e.sent = sent
	}

	if e.total > 0 {
		p := math.Floor(100 * float64(e.sent) / float64(e.total))
		e.raise(min(p, e.opts.UploadCap))
	}

	if e.filled > 0 && e.total > 0 {
		remaining := float64(max(e.total-e.sent, 0))
		secs := remaining / max(e.Throughput(), minThroughput)
		e.eta = time.Duration(secs * float64(time.Second))
		e.baseline = int(math.Ceil(secs))
		e.baselineAt = now
		if !e.etaKnown {
			e.etaKnown = true
			e.countdown = e.baseline
		}
	}

	if e.total > 0 && e.sent >= e.total {
		e.Finalize()
	}
}

// Tick advances the once-per-second display: the ETA countdown while
// uploading, the liveness creep while finalizing.
func (e *Estimator) Tick(now time.Time) {
	switch e.phase {
	case PhaseUploading:
		if !e.etaKnown {
			return
		}
		elapsed := int(now.Sub(e.baselineAt) / time.Second)
		e.countdown = max(0, e.baseline-elapsed)
	case PhaseFinalizing:
		e.raise(min(e.percent+e.opts.FinalizeCreepRate, e.opts.FinalizeCap))
	}
}

// Finalize marks every byte as sent while the server response is pending.
func (e *Estimator) Finalize() {
	if e.phase != PhaseUploading {
		return
	}
	e.phase = PhaseFinalizing
	e.raise(e.opts.UploadCap)
	e.eta = 0
	e.countdown = 0
}

// Done is only reached on a successful server response.
func (e *Estimator) Done() {
	if e.phase == PhaseError {
		return
	}
	e.phase = PhaseDone
	e.percent = 100
	if e.total > 0 {
		e.sent = e.total
	}
	e.eta = 0
	e.countdown = 0
}

func (e *Estimator) Fail(msg string) {
	if e.phase == PhaseDone {
		return
	}
	if msg == "" {
		msg = "Upload failed"
	}
	e.phase = PhaseError
	e.msg = msg
}

func (e *Estimator) Phase() Phase { return e.phase }

// Throughput is the mean of the instantaneous rates in the window.
func (e *Estimator) Throughput() float64 {
	if e.filled == 0 {
		return 0
	}
	var sum float64
	for _, r := range e.rates[:e.filled] {
		sum += r
	}
	return sum / float64(e.filled)
}

func (e *Estimator) Snapshot() Snapshot {
	return Snapshot{
		Phase:      e.phase,
		Percent:    int(math.Floor(e.percent)),
		Throughput: e.Throughput(),
		ETA:        e.eta,
		Countdown:  e.countdown,
		Sent:       e.sent,
		Total:      e.total,
		Message:    e.msg,
	}
}

func (e *Estimator) push(rate float64) {
	e.rates[e.next] = rate
	e.next = (e.next + 1) % len(e.rates)
	if e.filled < len(e.rates) {
		e.filled++
	}
}

func (e *Estimator) raise(p float64) {
	if p > e.percent {
		e.percent = p
	}
}
