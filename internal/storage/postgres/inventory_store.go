package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type inventoryStore struct {
	db *sql.DB
}

// NewInventoryStore создаёт PostgreSQL-реализацию InventoryStore.
// Строка products служит точкой сериализации по SKU: все мутации stock и
// reserved идут через условные однооператорные UPDATE.
func NewInventoryStore(store *Store) domain.InventoryStore {
	return &inventoryStore{db: store.DB()}
}

func (s *inventoryStore) Reserve(orderID string, items []domain.ReservationItem, ttl time.Duration, events func(domain.ReservationResult) []domain.OutboxEvent) (domain.ReservationResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if ttl <= 0 {
		ttl = domain.ReservationTTL
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ReservationResult{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	type reservedItem struct {
		sku string
		qty int64
	}

	var (
		succeeded []reservedItem
		failed    []domain.FailedItem
	)

	for _, item := range items {
		// Условный атомарный резерв: строка products - точка сериализации.
		var res sql.Result
		res, err = tx.ExecContext(ctx, `
			UPDATE products
			SET reserved = reserved + $2, updated_at = NOW()
			WHERE id = $1 AND stock - reserved >= $2
		`, item.SKU, item.Qty)
		if err != nil {
			return domain.ReservationResult{}, fmt.Errorf("reserve sku %s: %w", item.SKU, err)
		}

		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return domain.ReservationResult{}, fmt.Errorf("reserve rows affected: %w", err)
		}

		if affected == 1 {
			succeeded = append(succeeded, reservedItem{sku: item.SKU, qty: item.Qty})
			continue
		}

		reason := "insufficient_stock"
		var exists bool
		if err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
		`, item.SKU).Scan(&exists); err != nil {
			return domain.ReservationResult{}, fmt.Errorf("check sku existence: %w", err)
		}
		if !exists {
			reason = "unknown_sku"
		}
		failed = append(failed, domain.FailedItem{SKU: item.SKU, Requested: item.Qty, Reason: reason})
	}

	now := time.Now().UTC()
	result := domain.ReservationResult{ExpiresAt: now.Add(ttl)}

	if len(failed) > 0 {
		// Всё или ничего: откатываем каждый успешный резерв в той же транзакции.
		for _, r := range succeeded {
			if _, err = tx.ExecContext(ctx, `
				UPDATE products
				SET reserved = reserved - $2, updated_at = NOW()
				WHERE id = $1
			`, r.sku, r.qty); err != nil {
				return domain.ReservationResult{}, fmt.Errorf("reverse reserve sku %s: %w", r.sku, err)
			}
		}
		result.Success = false
		result.FailedItems = failed
	} else {
		result.Success = true
		result.ReservationID = uuid.NewString()
		for _, r := range succeeded {
			reservation := domain.Reservation{
				ID:        uuid.NewString(),
				OrderID:   orderID,
				SKU:       r.sku,
				Qty:       r.qty,
				Status:    domain.ReservationStatusPending,
				CreatedAt: now,
				ExpiresAt: result.ExpiresAt,
			}
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO reservations (id, order_id, sku, qty, status, created_at, expires_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`,
				reservation.ID, reservation.OrderID, reservation.SKU, reservation.Qty,
				string(reservation.Status), reservation.CreatedAt, reservation.ExpiresAt,
			); err != nil {
				return domain.ReservationResult{}, fmt.Errorf("insert reservation: %w", err)
			}
			result.Reservations = append(result.Reservations, reservation)
		}
	}

	if events != nil {
		if err = insertOutboxTx(ctx, tx, events(result)); err != nil {
			return domain.ReservationResult{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.ReservationResult{}, fmt.Errorf("commit reserve: %w", err)
	}

	return result, nil
}

func (s *inventoryStore) Confirm(orderID string, events func([]domain.Reservation) []domain.OutboxEvent) ([]domain.Reservation, error) {
	return s.settle(orderID, domain.ReservationStatusConfirmed, events)
}

func (s *inventoryStore) Release(orderID string, events func([]domain.Reservation) []domain.OutboxEvent) ([]domain.Reservation, error) {
	return s.settle(orderID, domain.ReservationStatusReleased, events)
}

// settle переводит pending-резервы заказа в конечный статус и симметрично
// правит счётчики товара. Повторный вызов находит ноль pending-строк и
// завершается без эффекта (идемпотентность).
func (s *inventoryStore) settle(orderID string, target domain.ReservationStatus, events func([]domain.Reservation) []domain.OutboxEvent) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	reservations, err := lockPendingReservations(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range reservations {
		r := &reservations[i]

		if target == domain.ReservationStatusConfirmed {
			// stock-, reserved-, sold+: инвариант stock >= reserved сохраняется.
			if err = execConditional(ctx, tx, `
				UPDATE products
				SET stock = stock - $2, reserved = reserved - $2, sold = sold + $2, updated_at = NOW()
				WHERE id = $1 AND reserved >= $2 AND stock >= $2
			`, r.SKU, r.Qty); err != nil {
				return nil, fmt.Errorf("confirm sku %s: %w", r.SKU, err)
			}
			r.ConfirmedAt = &now
		} else {
			if err = execConditional(ctx, tx, `
				UPDATE products
				SET reserved = reserved - $2, updated_at = NOW()
				WHERE id = $1 AND reserved >= $2
			`, r.SKU, r.Qty); err != nil {
				return nil, fmt.Errorf("release sku %s: %w", r.SKU, err)
			}
			r.ReleasedAt = &now
		}

		if err = markReservation(ctx, tx, r.ID, target, now); err != nil {
			return nil, err
		}
		r.Status = target
	}

	if events != nil && len(reservations) > 0 {
		if err = insertOutboxTx(ctx, tx, events(reservations)); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settle reservations: %w", err)
	}

	return reservations, nil
}

func (s *inventoryStore) ExpireDue(now time.Time, limit int, events func(domain.Reservation) []domain.OutboxEvent) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Конкурирующий confirm/release выигрывает: его блокировку пропускаем,
	// а предикат status='pending' отсекает уже завершённые резервы.
	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, sku, qty, created_at, expires_at
		FROM reservations
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("select expired reservations: %w", err)
	}

	expired, err := scanReservations(rows)
	if err != nil {
		return nil, err
	}

	settledAt := time.Now().UTC()
	for i := range expired {
		r := &expired[i]

		if err = execConditional(ctx, tx, `
			UPDATE products
			SET reserved = reserved - $2, updated_at = NOW()
			WHERE id = $1 AND reserved >= $2
		`, r.SKU, r.Qty); err != nil {
			return nil, fmt.Errorf("expire sku %s: %w", r.SKU, err)
		}

		if err = markReservation(ctx, tx, r.ID, domain.ReservationStatusExpired, settledAt); err != nil {
			return nil, err
		}
		r.Status = domain.ReservationStatusExpired
		r.ReleasedAt = &settledAt

		if events != nil {
			if err = insertOutboxTx(ctx, tx, events(*r)); err != nil {
				return nil, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit expire reservations: %w", err)
	}

	return expired, nil
}

func (s *inventoryStore) InvariantViolations() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM products WHERE stock < reserved OR reserved < 0
	`)
	if err != nil {
		return nil, fmt.Errorf("query invariant violations: %w", err)
	}
	defer rows.Close()

	var skus []string
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, fmt.Errorf("scan violated sku: %w", err)
		}
		skus = append(skus, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violated skus: %w", err)
	}

	return skus, nil
}

func lockPendingReservations(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.Reservation, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, sku, qty, created_at, expires_at
		FROM reservations
		WHERE order_id = $1 AND status = 'pending'
		ORDER BY id
		FOR UPDATE
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock pending reservations: %w", err)
	}
	return scanReservations(rows)
}

func scanReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.OrderID, &r.SKU, &r.Qty, &r.CreatedAt, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.Status = domain.ReservationStatusPending
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}

	return reservations, nil
}

func markReservation(ctx context.Context, tx *sql.Tx, id string, status domain.ReservationStatus, at time.Time) error {
	column := "released_at"
	if status == domain.ReservationStatusConfirmed {
		column = "confirmed_at"
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE reservations
		SET status = $2, %s = $3
		WHERE id = $1 AND status = 'pending'
	`, column), id, string(status), at)
	if err != nil {
		return fmt.Errorf("mark reservation %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reservation rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReservationTerminal
	}

	return nil
}

// execConditional выполняет условный UPDATE и требует ровно одной
// затронутой строки; ноль строк означает нарушение предиката.
func execConditional(ctx context.Context, tx *sql.Tx, query string, sku string, qty int64) error {
	res, err := tx.ExecContext(ctx, query, sku, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("conditional update affected no rows")
	}
	return nil
}

var _ domain.InventoryStore = (*inventoryStore)(nil)
