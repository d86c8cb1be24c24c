package subscription

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kriptosignal.ru/signals-bot/internal/common"
)

// Repository — доступ к таблице subscriptions.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const subscriptionColumns = `user_id, unique_amount, paid, start_date, end_date, tx_amount, tx_time, created_at, updated_at`

// GetByUserID возвращает подписку пользователя.
// Если записи нет — common.ErrNoSubscription.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Subscription, error) {
	sub := &Subscription{}
	err := r.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
	`, userID).Scan(
		&sub.UserID, &sub.UniqueAmountMicros, &sub.Paid,
		&sub.StartDate, &sub.EndDate,
		&sub.TxAmountMicros, &sub.TxTime,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNoSubscription
		}
		return nil, fmt.Errorf("не удалось получить подписку: %w", err)
	}
	return sub, nil
}

// Upsert записывает подписку целиком (вставка или перезапись по user_id).
// Арифметика дат выполняется в сервисе, репозиторий её не трогает.
func (r *Repository) Upsert(ctx context.Context, sub *Subscription) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO subscriptions (user_id, unique_amount, paid, start_date, end_date, tx_amount, tx_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			unique_amount = EXCLUDED.unique_amount,
			paid          = EXCLUDED.paid,
			start_date    = EXCLUDED.start_date,
			end_date      = EXCLUDED.end_date,
			tx_amount     = EXCLUDED.tx_amount,
			tx_time       = EXCLUDED.tx_time,
			updated_at    = NOW()
	`, sub.UserID, sub.UniqueAmountMicros, sub.Paid,
		sub.StartDate, sub.EndDate, sub.TxAmountMicros, sub.TxTime)
	if err != nil {
		return fmt.Errorf("не удалось сохранить подписку: %w", err)
	}
	return nil
}

// SetPaid выставляет флаг оплаты. Отсутствие записи не считается ошибкой.
func (r *Repository) SetPaid(ctx context.Context, userID int64, paid bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE subscriptions
		SET paid = $1, updated_at = NOW()
		WHERE user_id = $2
	`, paid, userID)
	if err != nil {
		return fmt.Errorf("не удалось обновить флаг оплаты: %w", err)
	}
	return nil
}

// ExpireOverdue снимает paid со всех просроченных подписок и возвращает
// их user_id. Условный UPDATE гарантирует, что каждая подписка попадёт
// в результат ровно одного запуска свипа.
func (r *Repository) ExpireOverdue(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE subscriptions
		SET paid = FALSE, updated_at = NOW()
		WHERE paid = TRUE AND end_date < NOW()
		RETURNING user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("не удалось снять просроченные подписки: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("не удалось прочитать user_id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAll возвращает все подписки (для админки и экспорта).
func (r *Repository) ListAll(ctx context.Context) ([]*Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		ORDER BY end_date DESC
	`)
}

// ListActive возвращает действующие подписки.
func (r *Repository) ListActive(ctx context.Context) ([]*Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE paid = TRUE AND end_date > NOW()
		ORDER BY end_date
	`)
}

// ListExpired возвращает подписки с истёкшим сроком.
func (r *Repository) ListExpired(ctx context.Context) ([]*Subscription, error) {
	return r.list(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE end_date < NOW()
		ORDER BY end_date DESC
	`)
}

func (r *Repository) list(ctx context.Context, query string) ([]*Subscription, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить список подписок: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub := &Subscription{}
		if err := rows.Scan(
			&sub.UserID, &sub.UniqueAmountMicros, &sub.Paid,
			&sub.StartDate, &sub.EndDate,
			&sub.TxAmountMicros, &sub.TxTime,
			&sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("не удалось прочитать подписку: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
