package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medbook/scheduling-core/internal/metrics"
)

// OutboxEntry is a generated event awaiting delivery.
type OutboxEntry struct {
	ID        uuid.UUID
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// DeliveryHandler hands an entry to a downstream transport. Delivery is
// at-least-once: a handler error leaves the entry pending for the next drain.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// OutboxStore persists generated events for reliable delivery.
type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// InsertTx writes an envelope inside the caller's transaction. This is the
// exactly-once generation point: the envelope commits or rolls back together
// with the appointment row it describes.
func InsertTx(ctx context.Context, tx pgx.Tx, env Envelope) error {
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	env.SchemaVersion = SchemaVersion

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), env.Type, payload, env.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, payload, created_at
		FROM event_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending events: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.Type, &payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE event_outbox
		SET delivered_at = now()
		WHERE id = $1 AND delivered_at IS NULL
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark event delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// PendingSource is what the Deliverer needs from the outbox.
type PendingSource interface {
	FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

// Deliverer polls the outbox and pushes entries through the handler in
// insertion order.
type Deliverer struct {
	source    PendingSource
	handler   DeliveryHandler
	logger    zerolog.Logger
	metrics   *metrics.SchedulingMetrics
	batchSize int32
	interval  time.Duration
}

func NewDeliverer(source PendingSource, handler DeliveryHandler, logger zerolog.Logger, m *metrics.SchedulingMetrics, batchSize int32, interval time.Duration) *Deliverer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Deliverer{
		source:    source,
		handler:   handler,
		logger:    logger,
		metrics:   m,
		batchSize: batchSize,
		interval:  interval,
	}
}

// Start blocks until ctx is cancelled, draining on each tick.
func (d *Deliverer) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch. A failed entry stays pending and blocks nothing
// behind it except ordering within its own retry.
func (d *Deliverer) Drain(ctx context.Context) {
	entries, err := d.source.FetchPending(ctx, d.batchSize)
	if err != nil {
		d.logger.Error().Err(err).Msg("outbox fetch failed")
		return
	}

	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error().Err(err).Str("event_id", entry.ID.String()).Str("event_type", entry.Type).Msg("event delivery failed")
			continue
		}
		if _, err := d.source.MarkDelivered(ctx, entry.ID); err != nil {
			d.logger.Error().Err(err).Str("event_id", entry.ID.String()).Msg("mark delivered failed")
			continue
		}
		d.metrics.ObserveEventDelivered()
	}
}
