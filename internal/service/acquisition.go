package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"electronic_load/internal/errs"
	"electronic_load/internal/logger"
	"electronic_load/internal/models"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	MinPollInterval     = 50 * time.Millisecond
)

// AcquisitionStatus describes the polling loop.
type AcquisitionStatus struct {
	Halted      bool      `json:"halted"`
	Connected   bool      `json:"connected"`
	IntervalSec float64   `json:"interval_s"`
	Cycles      uint64    `json:"cycles"`
	Failures    uint64    `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastPollAt  time.Time `json:"last_poll_at,omitempty"`
}

// connectivity is the part of the arbiter the loop needs.
type connectivity interface {
	Connected() bool
}

// AcquisitionService runs Sampler -> Accumulator -> sinks on a ticker.
type AcquisitionService struct {
	sampler *Sampler
	acc     *Accumulator
	conn    connectivity
	sinks   []Sink
	log     *logger.Logger

	interval  atomic.Int64
	intervalC chan time.Duration
	halted    atomic.Bool

	mu         sync.Mutex
	cycles     uint64
	failures   uint64
	lastErr    string
	lastPollAt time.Time
}

func NewAcquisitionService(sampler *Sampler, acc *Accumulator, conn connectivity, log *logger.Logger, sinks ...Sink) *AcquisitionService {
	a := &AcquisitionService{
		sampler:   sampler,
		acc:       acc,
		conn:      conn,
		sinks:     sinks,
		log:       log,
		intervalC: make(chan time.Duration, 1),
	}
	a.interval.Store(int64(DefaultPollInterval))
	return a
}

// SetInterval changes the polling period; a running loop picks it up on
// its next tick.
func (a *AcquisitionService) SetInterval(d time.Duration) error {
	if d < MinPollInterval {
		return &errs.ValidationError{Field: "polling.interval", Value: d.Seconds(), Bound: MinPollInterval.Seconds(), Rule: "min"}
	}
	a.interval.Store(int64(d))
	select {
	case a.intervalC <- d:
	default:
		// a pending change is already queued; Run reads the latest value
	}
	return nil
}

func (a *AcquisitionService) Interval() time.Duration { return time.Duration(a.interval.Load()) }

// Halt stops issuing polls until Resume. Telemetry stays as it was.
func (a *AcquisitionService) Halt() {
	if !a.halted.Swap(true) {
		a.log.Infow("acquisition_halted")
	}
}

func (a *AcquisitionService) Resume() {
	if a.halted.Swap(false) {
		a.log.Infow("acquisition_resumed")
	}
}

func (a *AcquisitionService) Status() AcquisitionStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AcquisitionStatus{
		Halted:      a.halted.Load(),
		Connected:   a.conn.Connected(),
		IntervalSec: a.Interval().Seconds(),
		Cycles:      a.cycles,
		Failures:    a.failures,
		LastError:   a.lastErr,
		LastPollAt:  a.lastPollAt,
	}
}

// Run ticks until ctx is cancelled. Cycles never overlap: a slow poll
// delays the next tick instead of running concurrently.
func (a *AcquisitionService) Run(ctx context.Context) {
	t := time.NewTicker(a.Interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.intervalC:
			t.Reset(a.Interval())
		case <-t.C:
			if a.halted.Load() || !a.conn.Connected() {
				continue
			}
			a.Cycle(ctx)
		}
	}
}

// Cycle performs one poll and hands the result to the accumulator and the
// sinks. A failed poll leaves the accumulator untouched.
func (a *AcquisitionService) Cycle(ctx context.Context) {
	snap, err := a.sampler.PollOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		pe := pollError(err, time.Now().UTC())
		a.mu.Lock()
		a.failures++
		a.lastErr = pe.Message
		a.mu.Unlock()
		a.log.Warnw("poll_failed", "op", pe.Op, "kind", pe.Kind, "error", err)
		for _, s := range a.sinks {
			s.PublishError(pe)
		}
		return
	}

	tel := a.acc.Apply(snap)
	a.mu.Lock()
	a.cycles++
	a.lastErr = ""
	a.lastPollAt = snap.Timestamp
	a.mu.Unlock()
	for _, s := range a.sinks {
		s.Publish(tel)
	}
}

func pollError(err error, at time.Time) models.PollError {
	pe := models.PollError{Op: "poll", Message: err.Error(), At: at}
	if de, ok := errs.AsDevice(err); ok {
		pe.Op = de.Op
		pe.Kind = string(de.Kind)
	}
	return pe
}
