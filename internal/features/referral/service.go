// Package referral — service.go проводит реферальные начисления.
//
// Settle вызывается строго после того, как условный UPDATE подтверждения
// покупки реально перевёл её из pending в confirmed: это единственная
// защита от двойного начисления. Уникальность (purchase_id, level)
// в журнале — страховка на случай, если кто-то всё же позовёт Settle
// дважды для одной покупки.
package referral

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/common"
	"kriptosignal.ru/signals-bot/internal/features/payments"
	"kriptosignal.ru/signals-bot/internal/features/users"
)

// earningStore — операции с журналом начислений.
type earningStore interface {
	CreditEarning(ctx context.Context, e *Earning) (bool, error)
	ListByReferrer(ctx context.Context, referrerID int64, limit int) ([]*Earning, error)
}

// userDirectory — чтение пользователей и счётчиков рефералов.
// Реализуется users.Service.
type userDirectory interface {
	GetByUserID(ctx context.Context, userID int64) (*users.User, error)
	CountReferrals(ctx context.Context, referrerID int64) (int, error)
}

// Service проводит начисления по реферальной цепочке.
type Service struct {
	repo      earningStore
	users     userDirectory
	l1Percent int
	l2Percent int
}

// NewService создаёт сервис партнёрки.
func NewService(repo earningStore, users userDirectory, l1Percent, l2Percent int) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		l1Percent: l1Percent,
		l2Percent: l2Percent,
	}
}

// Settle проводит начисления за подтверждённую покупку.
// Уровень 1 — пригласивший покупателя, уровень 2 — пригласивший
// пригласившего. Самоссылки пропускаются: петля начислений
// на самого себя невозможна. Отсутствие пригласившего — не ошибка.
func (s *Service) Settle(ctx context.Context, p *payments.Purchase) error {
	buyer, err := s.users.GetByUserID(ctx, p.UserID)
	if err != nil {
		return err
	}

	if buyer.ReferrerID == nil {
		return nil
	}
	l1 := *buyer.ReferrerID
	if l1 == p.UserID {
		// самоссылка в базе — начислять нечего и некому
		log.WithField("user_id", p.UserID).Warn("Пользователь указан сам себе пригласившим, пропускаем")
		return nil
	}

	if err := s.credit(ctx, p, l1, LevelDirect, s.l1Percent); err != nil {
		return err
	}

	// Уровень 2: пригласивший пригласившего
	l1User, err := s.users.GetByUserID(ctx, l1)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if l1User.ReferrerID == nil {
		return nil
	}
	l2 := *l1User.ReferrerID
	if l2 == l1 || l2 == p.UserID {
		return nil
	}

	return s.credit(ctx, p, l2, LevelIndirect, s.l2Percent)
}

func (s *Service) credit(ctx context.Context, p *payments.Purchase, referrerID int64, level, percent int) error {
	bonus := p.AmountMicros * int64(percent) / 100
	if bonus <= 0 {
		return nil
	}

	credited, err := s.repo.CreditEarning(ctx, &Earning{
		PurchaseID:   p.ID,
		ReferrerID:   referrerID,
		ReferredID:   p.UserID,
		Level:        level,
		AmountMicros: bonus,
	})
	if err != nil {
		return err
	}
	if !credited {
		log.WithFields(log.Fields{
			"purchase_id": p.ID,
			"level":       level,
		}).Warn("Начисление за эту покупку уже проведено, пропускаем")
		return nil
	}

	log.WithFields(log.Fields{
		"referrer_id": referrerID,
		"referred_id": p.UserID,
		"level":       level,
		"bonus":       common.FormatUSDT(bonus),
	}).Info("Реферальный бонус начислен")
	return nil
}

// Stats возвращает сводку партнёрки для экрана пользователя.
func (s *Service) Stats(ctx context.Context, userID int64) (*PartnerStats, error) {
	u, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	invited, err := s.users.CountReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &PartnerStats{
		Invited:   invited,
		Balance:   u.Balance,
		EarnedL1:  u.EarnedL1,
		EarnedL2:  u.EarnedL2,
		Withdrawn: u.Withdrawn,
	}, nil
}

// RecentEarnings возвращает последние начисления партнёра.
func (s *Service) RecentEarnings(ctx context.Context, referrerID int64, limit int) ([]*Earning, error) {
	return s.repo.ListByReferrer(ctx, referrerID, limit)
}
