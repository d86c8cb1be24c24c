// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: опрос оплат, свип истечения
// и публикацию авто-сигналов.
package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"kriptosignal.ru/signals-bot/internal/config"
	"kriptosignal.ru/signals-bot/internal/features/signals"
	"kriptosignal.ru/signals-bot/internal/features/subscription"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron       *cron.Cron
	cfg        *config.Config
	subService *subscription.Service
	sigService *signals.Service
}

// NewScheduler создаёт планировщик задач.
func NewScheduler(cfg *config.Config, subService *subscription.Service, sigService *signals.Service) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		cfg:        cfg,
		subService: subService,
		sigService: sigService,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	// Опрос оплат: ловим переводы, даже если пользователь не жмёт кнопку
	_, err := s.cron.AddFunc(every(s.cfg.PaymentScanInterval), func() {
		log.Debug("[CRON] Опрос оплат по живым счетам")
		if err := s.subService.PollPending(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка опроса оплат")
		}
	})
	if err != nil {
		return fmt.Errorf("не удалось запланировать опрос оплат: %w", err)
	}

	// Свип истечения подписок
	_, err = s.cron.AddFunc(every(s.cfg.ExpireCheckInterval), func() {
		log.Debug("[CRON] Свип истечения подписок")
		if err := s.subService.ExpireOverdue(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка свипа истечения")
		}
	})
	if err != nil {
		return fmt.Errorf("не удалось запланировать свип истечения: %w", err)
	}

	// Авто-сигналы в канал
	if s.cfg.AutoSignalsEnabled {
		_, err = s.cron.AddFunc(every(s.cfg.SignalInterval()), func() {
			log.Debug("[CRON] Публикация авто-сигнала")
			if err := s.sigService.PostAutoSignal(ctx); err != nil {
				log.WithError(err).Warn("[CRON] Цикл авто-сигнала пропущен")
			}
		})
		if err != nil {
			return fmt.Errorf("не удалось запланировать авто-сигналы: %w", err)
		}
	}

	s.cron.Start()
	log.WithFields(log.Fields{
		"payment_scan": s.cfg.PaymentScanInterval,
		"expire_check": s.cfg.ExpireCheckInterval,
		"auto_signals": s.cfg.AutoSignalsEnabled,
	}).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и дожидается текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func every(d fmt.Stringer) string {
	return "@every " + d.String()
}
