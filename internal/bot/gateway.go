// Package bot — gateway.go реализует доступ к закрытому каналу
// и доставку уведомлений. Эти типы внедряются в сервис подписок,
// чтобы бизнес-логика не зависела от API Telegram напрямую.
package bot

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// ChannelGate управляет членством в закрытом канале.
type ChannelGate struct {
	api       *tgbotapi.BotAPI
	channelID int64
}

// NewChannelGate создаёт шлюз закрытого канала.
func NewChannelGate(api *tgbotapi.BotAPI, channelID int64) *ChannelGate {
	return &ChannelGate{api: api, channelID: channelID}
}

// CreateInviteLink создаёт одноразовую ссылку-приглашение:
// member_limit=1, чтобы ссылку нельзя было переслать.
func (g *ChannelGate) CreateInviteLink(_ context.Context) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: g.channelID},
		MemberLimit: 1,
	}

	resp, err := g.api.Request(cfg)
	if err != nil {
		return "", fmt.Errorf("ошибка создания ссылки-приглашения: %w", err)
	}

	var link struct {
		InviteLink string `json:"invite_link"`
	}
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("ошибка разбора ответа createChatInviteLink: %w", err)
	}
	if link.InviteLink == "" {
		return "", fmt.Errorf("telegram вернул пустую ссылку-приглашение")
	}
	return link.InviteLink, nil
}

// BanMember выгоняет пользователя из канала.
func (g *ChannelGate) BanMember(_ context.Context, userID int64) error {
	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: g.channelID,
			UserID: userID,
		},
	}
	if _, err := g.api.Request(cfg); err != nil {
		return fmt.Errorf("ошибка бана в канале: %w", err)
	}
	return nil
}

// UnbanMember снимает бан, чтобы пользователь мог вернуться по новой ссылке.
func (g *ChannelGate) UnbanMember(_ context.Context, userID int64) error {
	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{
			ChatID: g.channelID,
			UserID: userID,
		},
		OnlyIfBanned: true,
	}
	if _, err := g.api.Request(cfg); err != nil {
		return fmt.Errorf("ошибка снятия бана в канале: %w", err)
	}
	return nil
}

// Notifier шлёт сообщения пользователям и операторский журнал админам.
type Notifier struct {
	api      *tgbotapi.BotAPI
	adminIDs []int64
}

// NewNotifier создаёт доставщик уведомлений.
func NewNotifier(api *tgbotapi.BotAPI, adminIDs []int64) *Notifier {
	return &Notifier{api: api, adminIDs: adminIDs}
}

// NotifyUser отправляет сообщение пользователю. Доставка best-effort:
// пользователь мог заблокировать бота.
func (n *Notifier) NotifyUser(userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось отправить уведомление")
	}
}

// Audit пишет запись в операторский журнал — личные сообщения админам.
func (n *Notifier) Audit(text string) {
	for _, id := range n.adminIDs {
		msg := tgbotapi.NewMessage(id, "🛠 LOG:\n"+text)
		if _, err := n.api.Send(msg); err != nil {
			log.WithError(err).WithField("admin_id", id).Warn("Не удалось отправить запись журнала")
		}
	}
}
