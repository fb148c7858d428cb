package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/shopflow/internal/domain"
)

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func (r *paymentRepository) Create(payment domain.Payment, events []domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if errs := payment.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid payment: %v", errs)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, user_id, amount, method, status, transaction_id,
			failure_reason, refund_id, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		payment.ID, payment.OrderID, payment.UserID, payment.Amount, payment.Method,
		string(payment.Status), payment.TransactionID, payment.FailureReason,
		payment.RefundID, payment.CreatedAt, payment.UpdatedAt, payment.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = domain.ErrPaymentAlreadyExists
			return err
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	if err = insertOutboxTx(ctx, tx, events); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) Get(id string) (domain.Payment, error) {
	return r.getOne(`WHERE id = $1`, id)
}

func (r *paymentRepository) GetByOrder(orderID string) (domain.Payment, error) {
	return r.getOne(`WHERE order_id = $1`, orderID)
}

func (r *paymentRepository) getOne(where, arg string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		p           domain.Payment
		statusRaw   string
		completedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, user_id, amount, method, status, transaction_id,
		       failure_reason, refund_id, created_at, updated_at, completed_at
		FROM payments
	`+where, arg).Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Method, &statusRaw,
		&p.TransactionID, &p.FailureReason, &p.RefundID,
		&p.CreatedAt, &p.UpdatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}

	p.Status = domain.PaymentStatus(statusRaw)
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		p.CompletedAt = &t
	}

	return p, nil
}

func (r *paymentRepository) Save(payment domain.Payment, events []domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	payment.UpdatedAt = time.Now().UTC()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, transaction_id = $3, failure_reason = $4, refund_id = $5,
		    updated_at = $6, completed_at = $7
		WHERE id = $1
	`,
		payment.ID, string(payment.Status), payment.TransactionID, payment.FailureReason,
		payment.RefundID, payment.UpdatedAt, payment.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	var affected int64
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment rows affected: %w", err)
	}
	if affected == 0 {
		err = domain.ErrPaymentNotFound
		return err
	}

	if err = insertOutboxTx(ctx, tx, events); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save payment: %w", err)
	}

	return nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
