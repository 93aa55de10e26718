package notify

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Recorder appends events to the activity_events table.
type Recorder struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewRecorder(pool *pgxpool.Pool, log *zap.Logger) *Recorder {
	return &Recorder{pool: pool, log: log}
}

func (r *Recorder) Publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		r.log.Warn("marshal activity payload", zap.String("event", ev.Type), zap.Error(err))
		data = nil
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO activity_events (event_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, ev.Type, ev.EntityID, data)
	if err != nil {
		r.log.Warn("insert activity event",
			zap.String("event", ev.Type),
			zap.String("entity_id", ev.EntityID.String()),
			zap.Error(err))
	}
}
