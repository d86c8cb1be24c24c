// Package admin — service.go содержит логику аутентификации, управления сессиями
// и state-машину для пошаговых админ-действий.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"kriptosignal.ru/signals-bot/internal/config"
)

// sessionStore — хранилище сессий и попыток входа.
type sessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetActiveSession(ctx context.Context, userID int64) (*Session, error)
	DeactivateSessions(ctx context.Context, userID int64) error
	UpdateActivity(ctx context.Context, userID int64) error
	LogAttempt(ctx context.Context, userID int64, success bool) error
	GetRecentAttempts(ctx context.Context, userID int64, period time.Duration) (int, error)
}

// Service управляет доступом к админ-панели.
type Service struct {
	store    sessionStore
	cfg      *config.Config
	states   map[int64]*State // Состояния диалогов (in-memory)
	statesMu sync.RWMutex
}

// NewService создаёт сервис админ-панели.
func NewService(store sessionStore, cfg *config.Config) *Service {
	return &Service{
		store:  store,
		cfg:    cfg,
		states: make(map[int64]*State),
	}
}

// IsAdmin сообщает, входит ли пользователь в список администраторов.
func (s *Service) IsAdmin(userID int64) bool {
	return s.cfg.IsAdmin(userID)
}

// VerifyPassword проверяет пароль администратора по хешу Argon2id.
// Защита от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) VerifyPassword(ctx context.Context, userID int64, password string) error {
	attempts, err := s.store.GetRecentAttempts(ctx, userID, 1*time.Hour)
	if err != nil {
		return err
	}
	if attempts >= 3 {
		return fmt.Errorf("слишком много попыток, подождите 1 час")
	}

	match := verifyArgon2id(password, s.cfg.AdminPasswordHash)

	if err := s.store.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку входа")
	}

	if !match {
		return fmt.Errorf("неверный пароль")
	}

	// Создаём сессию (24 часа)
	session := &Session{
		UserID:       userID,
		SessionToken: generateSecureToken(),
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
	return s.store.CreateSession(ctx, session)
}

// HasActiveSession проверяет, есть ли у пользователя активная сессия.
func (s *Service) HasActiveSession(ctx context.Context, userID int64) bool {
	session, err := s.store.GetActiveSession(ctx, userID)
	return err == nil && session != nil
}

// Logout деактивирует все сессии администратора.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	s.ClearState(userID)
	return s.store.DeactivateSessions(ctx, userID)
}

// TouchSession обновляет время последней активности сессии.
func (s *Service) TouchSession(ctx context.Context, userID int64) {
	if err := s.store.UpdateActivity(ctx, userID); err != nil {
		log.WithError(err).Warn("Не удалось обновить активность сессии")
	}
}

// GetState возвращает текущее состояние диалога.
func (s *Service) GetState(userID int64) *State {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil
	}
	if time.Now().After(state.ExpiresAt) {
		return nil
	}
	return state
}

// SetState устанавливает состояние диалога с 5-минутным таймаутом.
func (s *Service) SetState(userID int64, stateName string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	s.states[userID] = &State{
		State:     stateName,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
}

// ClearState сбрасывает состояние диалога.
func (s *Service) ClearState(userID int64) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()
	delete(s.states, userID)
}

// --- Криптографические утилиты ---

// verifyArgon2id проверяет пароль по хешу Argon2id.
// Формат хеша: $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory uint32
	var iterations uint32
	var parallelism uint8
	_, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism)
	if err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравнение в постоянном времени (защита от timing attack)
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
