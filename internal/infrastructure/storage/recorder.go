package storage

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/oakhollow/trapengine/internal/domain/events"
)

// Recorder adapts a Store to dispatcher.Recorder: it appends every event
// to the store's audit log and logs (rather than propagates) a write
// failure, since a dropped audit event must never block the host event
// loop that produced it.
type Recorder struct {
	Store  Store
	Logger zerolog.Logger
}

func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{Store: store, Logger: logger}
}

func (r *Recorder) Record(ctx context.Context, ev events.Event) {
	if err := r.Store.AppendEvent(ctx, ev); err != nil {
		r.Logger.Error().Err(err).Str("trap_id", ev.TrapID).Str("type", string(ev.Type)).Msg("failed to append audit event")
	}
}
