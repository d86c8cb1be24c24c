// Package users — service.go содержит бизнес-логику учёта пользователей:
// регистрацию при первом обращении, привязку пригласившего и выплаты.
package users

import (
	"context"

	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/common"
)

// store — операции с таблицей users, которые нужны сервису.
// Реализуется Repository; в тестах подменяется фейком.
type store interface {
	Ensure(ctx context.Context, userID int64, username string) error
	GetByUserID(ctx context.Context, userID int64) (*User, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	SetReferrer(ctx context.Context, userID, referrerID int64) (bool, error)
	ListAll(ctx context.Context) ([]*User, error)
	CountReferrals(ctx context.Context, referrerID int64) (int, error)
	Withdraw(ctx context.Context, userID int64, amount int64) error
}

// Service управляет пользователями бота.
type Service struct {
	repo store
}

// NewService создаёт новый сервис пользователей.
func NewService(repo store) *Service {
	return &Service{repo: repo}
}

// EnsureUser гарантирует, что пользователь есть в базе, и обновляет
// его активность. Вызывается на каждое входящее сообщение.
func (s *Service) EnsureUser(ctx context.Context, userID int64, username string) error {
	return s.repo.Ensure(ctx, userID, username)
}

// GetByUserID возвращает пользователя по его Telegram user ID.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*User, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// ListAll возвращает всех пользователей (для админки).
func (s *Service) ListAll(ctx context.Context) ([]*User, error) {
	return s.repo.ListAll(ctx)
}

// RegisterReferral привязывает пригласившего к новому пользователю.
// Правила:
//   - нельзя указывать самого себя
//   - пригласивший должен существовать в базе
//   - уже привязанного пригласившего сменить нельзя
//
// Возвращает true, если связь записана.
func (s *Service) RegisterReferral(ctx context.Context, userID, referrerID int64) (bool, error) {
	if userID == referrerID {
		return false, common.ErrSelfReferral
	}

	exists, err := s.repo.Exists(ctx, referrerID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, common.ErrReferrerNotFound
	}

	set, err := s.repo.SetReferrer(ctx, userID, referrerID)
	if err != nil {
		return false, err
	}
	if set {
		log.WithFields(log.Fields{
			"user_id":     userID,
			"referrer_id": referrerID,
		}).Info("Новый реферал привязан")
	}
	return set, nil
}

// CountReferrals возвращает число приглашённых пользователем.
func (s *Service) CountReferrals(ctx context.Context, referrerID int64) (int, error) {
	return s.repo.CountReferrals(ctx, referrerID)
}

// Payout списывает выплату с реферального баланса пользователя.
func (s *Service) Payout(ctx context.Context, userID int64, amountMicros int64) error {
	if amountMicros <= 0 {
		return common.ErrInvalidAmount
	}

	if err := s.repo.Withdraw(ctx, userID, amountMicros); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"amount":  common.FormatUSDT(amountMicros),
	}).Info("Выплата проведена")
	return nil
}
