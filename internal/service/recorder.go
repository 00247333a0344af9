package service

import (
	"context"
	"slices"

	"electronic_load/internal/logger"
	"electronic_load/internal/models"
	"electronic_load/internal/repository"

	"github.com/google/uuid"
)

type recordItem struct {
	telemetry *models.Telemetry
	pollErr   *models.PollError
}

// Recorder persists telemetry and poll errors from a bounded queue on its
// own goroutine. When the queue is full the item is dropped.
type Recorder struct {
	stateRepo repository.StateRepo
	eventRepo repository.EventRepo
	log       *logger.Logger
	queue     chan recordItem

	// owned by Run
	lastState models.RunState
	lastMode  models.Mode
	faults    []string
}

func NewRecorder(stateRepo repository.StateRepo, eventRepo repository.EventRepo, log *logger.Logger, queueLen int) *Recorder {
	if queueLen <= 0 {
		queueLen = 64
	}
	return &Recorder{
		stateRepo: stateRepo,
		eventRepo: eventRepo,
		log:       log,
		queue:     make(chan recordItem, queueLen),
		lastState: models.Stopped,
	}
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) Publish(t models.Telemetry) {
	t = t.Copy()
	r.enqueue(recordItem{telemetry: &t})
}

func (r *Recorder) PublishError(e models.PollError) {
	r.enqueue(recordItem{pollErr: &e})
}

func (r *Recorder) enqueue(it recordItem) {
	select {
	case r.queue <- it:
	default:
		r.log.Warnw("recorder_queue_full", "capacity", cap(r.queue))
	}
}

// Run drains the queue until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-r.queue:
			switch {
			case it.telemetry != nil:
				r.recordTelemetry(ctx, *it.telemetry)
			case it.pollErr != nil:
				r.recordError(ctx, *it.pollErr)
			}
		}
	}
}

func (r *Recorder) recordTelemetry(ctx context.Context, t models.Telemetry) {
	r.faults = nil

	if t.RunState != r.lastState {
		typ, desc := models.EventStart, "Run started"
		if t.RunState == models.Stopped {
			typ, desc = models.EventStop, "Run stopped"
		}
		r.appendEvent(ctx, models.LoadEvent{
			OccurredAt:  t.UpdatedAt,
			Type:        typ,
			Description: desc,
			Metadata: map[string]any{
				"mode":      t.Mode,
				"charge_ah": t.Totals.ChargeAh,
				"energy_wh": t.Totals.EnergyWh,
				"runtime_s": t.RuntimeSeconds,
			},
		})
		r.lastState = t.RunState
	}
	if r.lastMode != "" && t.Mode != r.lastMode {
		r.appendEvent(ctx, models.LoadEvent{
			OccurredAt:  t.UpdatedAt,
			Type:        models.EventModeChange,
			Description: "Mode changed to " + string(t.Mode),
			Metadata:    map[string]any{"from": r.lastMode, "to": t.Mode},
		})
	}
	r.lastMode = t.Mode

	if err := r.stateRepo.Save(ctx, models.StateFromTelemetry(t)); err != nil {
		r.log.Errorw("save_state_failed", "error", err)
	}
}

// recordError logs the first failure of a streak as an event; later ones
// only extend the persisted fault list.
func (r *Recorder) recordError(ctx context.Context, e models.PollError) {
	first := len(r.faults) == 0
	if !slices.Contains(r.faults, e.Kind) {
		r.faults = append(r.faults, e.Kind)
	}
	if first {
		r.appendEvent(ctx, models.LoadEvent{
			OccurredAt:  e.At,
			Type:        models.EventError,
			Description: e.Message,
			Metadata:    map[string]any{"op": e.Op, "kind": e.Kind},
		})
	}

	st, err := r.stateRepo.Load(ctx)
	if err != nil {
		r.log.Errorw("load_state_failed", "error", err)
		return
	}
	st.ID = 1
	if st.RunState == "" {
		st.RunState = r.lastState
	}
	st.Faults = append([]string(nil), r.faults...)
	st.UpdatedAt = e.At
	if err := r.stateRepo.Save(ctx, st); err != nil {
		r.log.Errorw("save_state_failed", "error", err)
	}
}

func (r *Recorder) appendEvent(ctx context.Context, e models.LoadEvent) {
	e.EventID = uuid.NewString()
	if err := r.eventRepo.Append(ctx, e); err != nil {
		r.log.Errorw("append_event_failed", "type", e.Type, "error", err)
	}
}
