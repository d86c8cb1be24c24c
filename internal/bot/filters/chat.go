// Package filters отсекает апдейты, с которыми бот не работает.
package filters

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// ChatFilter пропускает только личные сообщения. Бот продаёт подписку
// в DM; сообщения из групп и каналов (в том числе сервисные из
// закрытого канала) молча игнорируются.
type ChatFilter struct{}

func NewChatFilter() *ChatFilter {
	return &ChatFilter{}
}

func (f *ChatFilter) CheckAccess(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		// Сервисные сообщения каналов приходят без отправителя
		return false
	}
	if !message.Chat.IsPrivate() {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("deny: не личный чат")
		return false
	}
	return true
}
