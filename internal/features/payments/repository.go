// Package payments — repository.go выполняет все операции с таблицей purchases.
// Ключевая операция — ConfirmPending: единственный условный UPDATE,
// который гарантирует, что счёт будет подтверждён ровно один раз,
// даже если ручная проверка оплаты гонится с фоновым свипом.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"kriptosignal.ru/signals-bot/internal/common"
)

// ErrAmountTaken — уникальная сумма уже занята другим живым счётом.
// Вызывающий перегенерирует хвост и пробует снова.
var ErrAmountTaken = errors.New("сумма уже занята другим счётом")

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIntent выставляет новый счёт на оплату.
// Старый неоплаченный счёт пользователя помечается superseded —
// живым остаётся ровно один счёт (это держит и частичный уникальный
// индекс по user_id). Если сумма занята чужим счётом — ErrAmountTaken.
func (r *Repository) CreateIntent(ctx context.Context, userID int64, amountMicros int64) (*Purchase, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE purchases SET status = $1 WHERE user_id = $2 AND status = $3
	`, StatusSuperseded, userID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("ошибка отмены старого счёта: %w", err)
	}

	var p Purchase
	err = tx.QueryRow(ctx, `
		INSERT INTO purchases (user_id, amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, amount, status, created_at, confirmed_at
	`, userID, amountMicros, StatusPending).Scan(
		&p.ID, &p.UserID, &p.AmountMicros, &p.Status, &p.CreatedAt, &p.ConfirmedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAmountTaken
		}
		return nil, fmt.Errorf("ошибка создания счёта: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return &p, nil
}

// GetPendingByUser возвращает живой счёт пользователя.
// Если счёта нет — common.ErrNoPendingIntent.
func (r *Repository) GetPendingByUser(ctx context.Context, userID int64) (*Purchase, error) {
	var p Purchase
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, amount, status, created_at, confirmed_at
		FROM purchases
		WHERE user_id = $1 AND status = $2
	`, userID, StatusPending).Scan(
		&p.ID, &p.UserID, &p.AmountMicros, &p.Status, &p.CreatedAt, &p.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNoPendingIntent
		}
		return nil, fmt.Errorf("ошибка чтения счёта (user_id=%d): %w", userID, err)
	}
	return &p, nil
}

// ConfirmPending атомарно подтверждает живой счёт пользователя.
// Возвращает (покупка, true), если счёт действительно переведён
// в confirmed этим вызовом, и (nil, false), если живого счёта нет —
// например, его уже подтвердила параллельная проверка.
func (r *Repository) ConfirmPending(ctx context.Context, userID int64) (*Purchase, bool, error) {
	var p Purchase
	err := r.db.QueryRow(ctx, `
		UPDATE purchases
		SET status = $1, confirmed_at = NOW()
		WHERE user_id = $2 AND status = $3
		RETURNING id, user_id, amount, status, created_at, confirmed_at
	`, StatusConfirmed, userID, StatusPending).Scan(
		&p.ID, &p.UserID, &p.AmountMicros, &p.Status, &p.CreatedAt, &p.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("ошибка подтверждения счёта (user_id=%d): %w", userID, err)
	}
	return &p, true, nil
}

// ListPendingUserIDs возвращает пользователей с живыми счетами —
// их обходит фоновый свип проверки оплаты.
func (r *Repository) ListPendingUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id FROM purchases WHERE status = $1 ORDER BY created_at
	`, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения живых счетов: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования user_id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListConfirmed возвращает подтверждённые покупки, свежие первыми.
// Используется в админке как история платежей.
func (r *Repository) ListConfirmed(ctx context.Context) ([]*Purchase, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, status, created_at, confirmed_at
		FROM purchases
		WHERE status = $1
		ORDER BY confirmed_at DESC
	`, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории платежей: %w", err)
	}
	defer rows.Close()

	var out []*Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.AmountMicros, &p.Status, &p.CreatedAt, &p.ConfirmedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования покупки: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// isUniqueViolation: код 23505 — нарушение уникального индекса.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
