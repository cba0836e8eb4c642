package data

import (
	"context"

	tele "gopkg.in/telebot.v3"

	"github.com/anthropics/tgmod/internal/biz/domain"
	"github.com/anthropics/tgmod/internal/biz/repo"
	"github.com/anthropics/tgmod/internal/infra/telegram"
)

// telegramOutbound implements repo.Outbound on the paced Telegram client.
type telegramOutbound struct {
	client *telegram.Client
}

// NewTelegramOutbound creates the outbound message adapter.
func NewTelegramOutbound(client *telegram.Client) repo.Outbound {
	return &telegramOutbound{client: client}
}

func (o *telegramOutbound) SendText(ctx context.Context, chatID int64, text string) error {
	return o.client.SendText(ctx, chatID, text)
}

func (o *telegramOutbound) SendButtons(ctx context.Context, chatID int64, text string, buttons []domain.TrafficButton) error {
	markup := ButtonMarkup(buttons)
	if markup == nil {
		return o.client.SendText(ctx, chatID, text)
	}
	return o.client.SendMarkup(ctx, chatID, text, markup)
}

func (o *telegramOutbound) Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	return o.client.Forward(ctx, toChatID, fromChatID, messageID)
}

// ButtonMarkup lays the configured traffic buttons out two per row.
// Returns nil when there is nothing to render.
func ButtonMarkup(buttons []domain.TrafficButton) *tele.ReplyMarkup {
	rendered := domain.RenderButtons(buttons)
	if len(rendered) == 0 {
		return nil
	}

	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	for i := 0; i < len(rendered); i += 2 {
		row := tele.Row{markup.URL(rendered[i].Text, rendered[i].URL)}
		if i+1 < len(rendered) {
			row = append(row, markup.URL(rendered[i+1].Text, rendered[i+1].URL))
		}
		rows = append(rows, row)
	}
	markup.Inline(rows...)
	return markup
}
