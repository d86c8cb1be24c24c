// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки оплаты и подписки
var (
	// ErrNoPendingIntent — у пользователя нет активного счёта на оплату
	ErrNoPendingIntent = errors.New("нет активного счёта на оплату")
	// ErrNoSubscription — у пользователя нет записи подписки
	ErrNoSubscription = errors.New("подписка не найдена")
	// ErrMintCollision — не удалось подобрать уникальную сумму (все варианты заняты)
	ErrMintCollision = errors.New("не удалось сгенерировать уникальную сумму")
	// ErrInvalidAmount — некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
)

// Ошибки реферальной программы
var (
	// ErrSelfReferral — попытка указать самого себя как пригласившего
	ErrSelfReferral = errors.New("нельзя указывать себя как пригласившего")
	// ErrReferrerNotFound — пригласивший не найден в базе
	ErrReferrerNotFound = errors.New("пригласивший не найден")
	// ErrInsufficientBalance — недостаточно средств на балансе
	ErrInsufficientBalance = errors.New("недостаточно средств на балансе")
)

// Ошибки пользователей
var (
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
)
