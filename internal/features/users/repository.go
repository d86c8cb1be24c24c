// Package users — repository.go отвечает за все операции с таблицей users в БД.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kriptosignal.ru/signals-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Ensure создаёт пользователя при первом обращении или обновляет
// username и last_active при повторном. Вызывается на каждый апдейт.
func (r *Repository) Ensure(ctx context.Context, userID int64, username string) error {
	query := `
		INSERT INTO users (user_id, username, first_seen, last_active)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    last_active = NOW(),
		    updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, userID, username); err != nil {
		return fmt.Errorf("ошибка создания/обновления пользователя: %w", err)
	}
	return nil
}

// GetByUserID возвращает пользователя. Если не найден — common.ErrUserNotFound.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT user_id, username, first_seen, last_active, referrer_id,
		       balance, earned_l1, earned_l2, withdrawn, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`
	var u User
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&u.UserID, &u.Username, &u.FirstSeen, &u.LastActive, &u.ReferrerID,
		&u.Balance, &u.EarnedL1, &u.EarnedL2, &u.Withdrawn, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (user_id=%d): %w", userID, err)
	}
	return &u, nil
}

// Exists проверяет, есть ли пользователь в базе.
func (r *Repository) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки пользователя: %w", err)
	}
	return exists, nil
}

// SetReferrer записывает пригласившего, только если он ещё не задан.
// Повторные заходы по чужим ссылкам пригласившего не меняют.
// Возвращает true, если связь действительно записана.
func (r *Repository) SetReferrer(ctx context.Context, userID, referrerID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET referrer_id = $2, updated_at = NOW()
		WHERE user_id = $1 AND referrer_id IS NULL
	`, userID, referrerID)
	if err != nil {
		return false, fmt.Errorf("ошибка записи пригласившего: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAll возвращает всех пользователей по порядку первого обращения.
func (r *Repository) ListAll(ctx context.Context) ([]*User, error) {
	query := `
		SELECT user_id, username, first_seen, last_active, referrer_id,
		       balance, earned_l1, earned_l2, withdrawn, created_at, updated_at
		FROM users
		ORDER BY first_seen
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.UserID, &u.Username, &u.FirstSeen, &u.LastActive, &u.ReferrerID,
			&u.Balance, &u.EarnedL1, &u.EarnedL2, &u.Withdrawn, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// CountReferrals возвращает, сколько пользователей пришло по приглашению referrerID.
func (r *Repository) CountReferrals(ctx context.Context, referrerID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE referrer_id = $1`, referrerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта рефералов: %w", err)
	}
	return n, nil
}

// Withdraw списывает выплату с реферального баланса.
// Баланс проверяется под блокировкой строки, чтобы две параллельные
// выплаты не увели его в минус.
func (r *Repository) Withdraw(ctx context.Context, userID int64, amount int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT balance FROM users WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("ошибка получения баланса: %w", err)
	}

	if balance < amount {
		return common.ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET balance = balance - $2, withdrawn = withdrawn + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("ошибка списания выплаты: %w", err)
	}

	return tx.Commit(ctx)
}
