package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

// insertOutboxTx пишет события outbox внутри уже открытой бизнес-транзакции.
// Так строка outbox и бизнес-изменение коммитятся атомарно.
func insertOutboxTx(ctx context.Context, tx *sql.Tx, events []domain.OutboxEvent) error {
	for i := range events {
		e := &events[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		if errs := e.Validate(); len(errs) > 0 {
			return fmt.Errorf("invalid outbox event %s: %v", e.EventType, errs)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbox_events (
				id, aggregate_type, aggregate_id, event_type, topic, partition_key,
				payload, correlation_id, source_service, status, retry_count, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'pending',0,$10)
		`,
			e.ID, e.AggregateType, e.AggregateID, e.EventType, e.Topic, e.PartitionKey,
			e.Payload, e.CorrelationID, e.SourceService, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert outbox event %s: %w", e.EventType, err)
		}
	}
	return nil
}

func (r *outboxRepository) Enqueue(event domain.OutboxEvent) (domain.OutboxEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("begin tx: %w", err)
	}

	events := []domain.OutboxEvent{event}
	if err := insertOutboxTx(ctx, tx, events); err != nil {
		_ = tx.Rollback()
		return domain.OutboxEvent{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("commit enqueue outbox: %w", err)
	}

	events[0].Status = domain.OutboxStatusPending
	return events[0], nil
}

func (r *outboxRepository) ProcessPending(limit, maxAttempts int, publish func(domain.OutboxEvent) error) (domain.OutboxBatchResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = domain.OutboxMaxAttempts
	}

	var result domain.OutboxBatchResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// SKIP LOCKED: конкурирующие publisher'ы не дерутся за одни строки.
	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, topic, partition_key,
		       payload, correlation_id, source_service, retry_count, created_at
		FROM outbox_events
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return result, fmt.Errorf("select pending outbox events: %w", err)
	}

	batch := make([]domain.OutboxEvent, 0, limit)
	for rows.Next() {
		var e domain.OutboxEvent
		if err = rows.Scan(
			&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Topic, &e.PartitionKey,
			&e.Payload, &e.CorrelationID, &e.SourceService, &e.RetryCount, &e.CreatedAt,
		); err != nil {
			rows.Close()
			return result, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Status = domain.OutboxStatusPending
		batch = append(batch, e)
	}
	if err = rows.Err(); err != nil {
		rows.Close()
		return result, fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	now := time.Now().UTC()
	for _, e := range batch {
		result.Processed++

		publishErr := publish(e)
		if publishErr == nil {
			if _, err = tx.ExecContext(ctx, `
				UPDATE outbox_events
				SET status = 'published', published_at = $2
				WHERE id = $1
			`, e.ID, now); err != nil {
				return result, fmt.Errorf("mark outbox event published: %w", err)
			}
			result.Published++
			continue
		}

		if e.RetryCount+1 >= maxAttempts {
			if _, err = tx.ExecContext(ctx, `
				UPDATE outbox_events
				SET status = 'failed', retry_count = retry_count + 1, error_message = $2
				WHERE id = $1
			`, e.ID, publishErr.Error()); err != nil {
				return result, fmt.Errorf("mark outbox event failed: %w", err)
			}
			e.Status = domain.OutboxStatusFailed
			e.RetryCount++
			e.ErrorMessage = publishErr.Error()
			result.Failed = append(result.Failed, e)
			continue
		}

		if _, err = tx.ExecContext(ctx, `
			UPDATE outbox_events
			SET retry_count = retry_count + 1, error_message = $2
			WHERE id = $1
		`, e.ID, publishErr.Error()); err != nil {
			return result, fmt.Errorf("mark outbox event for retry: %w", err)
		}
		result.Retried++
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit outbox batch: %w", err)
	}

	return result, nil
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)

	if err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			MIN(created_at) FILTER (WHERE status = 'pending')
		FROM outbox_events
	`).Scan(&stats.PendingCount, &stats.FailedCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}

	return stats, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
