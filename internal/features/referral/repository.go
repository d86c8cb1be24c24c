// Package referral — repository.go выполняет операции с таблицей
// referral_earnings. Начисление пишет журнальную запись и обновляет
// баланс партнёра в одной транзакции БД: либо обе записи, либо ни одной.
package referral

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreditEarning начисляет бонус партнёру.
// Уникальный индекс (purchase_id, level) делает повторное начисление
// за ту же покупку no-op: тогда и баланс не трогается, возвращается false.
func (r *Repository) CreditEarning(ctx context.Context, e *Earning) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO referral_earnings (purchase_id, referrer_id, referred_id, level, amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (purchase_id, level) DO NOTHING
	`, e.PurchaseID, e.ReferrerID, e.ReferredID, e.Level, e.AmountMicros)
	if err != nil {
		return false, fmt.Errorf("ошибка записи начисления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Эта покупка на этом уровне уже проведена
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET balance = balance + $2,
		    earned_l1 = earned_l1 + CASE WHEN $3 = 1 THEN $2 ELSE 0 END,
		    earned_l2 = earned_l2 + CASE WHEN $3 = 2 THEN $2 ELSE 0 END,
		    updated_at = NOW()
		WHERE user_id = $1
	`, e.ReferrerID, e.AmountMicros, e.Level)
	if err != nil {
		return false, fmt.Errorf("ошибка начисления на баланс: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return true, nil
}

// ListByReferrer возвращает последние начисления партнёра.
func (r *Repository) ListByReferrer(ctx context.Context, referrerID int64, limit int) ([]*Earning, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, purchase_id, referrer_id, referred_id, level, amount, created_at
		FROM referral_earnings
		WHERE referrer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, referrerID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения начислений: %w", err)
	}
	defer rows.Close()

	var out []*Earning
	for rows.Next() {
		var e Earning
		if err := rows.Scan(
			&e.ID, &e.PurchaseID, &e.ReferrerID, &e.ReferredID,
			&e.Level, &e.AmountMicros, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования начисления: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
