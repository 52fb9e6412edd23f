package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// BotAPI is the part of *tgbotapi.BotAPI the runner uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramRunner long-polls Telegram and feeds every update through the
// conversation. Updates are handled one at a time, so a user's steps never
// interleave.
type TelegramRunner struct {
	api          BotAPI
	conversation *Conversation
	logger       *logrus.Logger
	pollTimeout  int
}

func NewTelegramRunner(api BotAPI, conversation *Conversation, logger *logrus.Logger) *TelegramRunner {
	return &TelegramRunner{
		api:          api,
		conversation: conversation,
		logger:       logger,
		pollTimeout:  30,
	}
}

func (r *TelegramRunner) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = r.pollTimeout
	updates := r.api.GetUpdatesChan(u)

	r.logger.Info("Telegram bot polling for updates")
	for {
		select {
		case <-ctx.Done():
			r.api.StopReceivingUpdates()
			r.logger.Info("Telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			r.handleUpdate(ctx, update)
		}
	}
}

func (r *TelegramRunner) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	in, ok := toInbound(update)
	if !ok {
		return
	}

	if update.CallbackQuery != nil {
		if _, err := r.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "")); err != nil {
			r.logger.WithError(err).Warn("Failed to answer callback query")
		}
	}

	for _, reply := range r.conversation.Handle(ctx, in) {
		for _, msg := range render(in.ChatID, reply) {
			if _, err := r.api.Send(msg); err != nil {
				r.logger.WithError(err).WithFields(logrus.Fields{
					"chat_id": in.ChatID,
					"user_id": in.UserID,
				}).Error("Failed to send bot reply")
			}
		}
	}
}

func toInbound(update tgbotapi.Update) (Inbound, bool) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return Inbound{}, false
		}
		return Inbound{
			UserID:    q.From.ID,
			ChatID:    q.Message.Chat.ID,
			FirstName: q.From.FirstName,
			Callback:  q.Data,
		}, true

	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil {
			return Inbound{}, false
		}
		in := Inbound{
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			FirstName: m.From.FirstName,
			Text:      m.Text,
		}
		if m.Contact != nil {
			in.Contact = &Contact{
				Phone:     m.Contact.PhoneNumber,
				FirstName: m.Contact.FirstName,
				LastName:  m.Contact.LastName,
			}
		}
		return in, true
	}
	return Inbound{}, false
}

// render turns a reply into Telegram messages. A message carries a single
// keyboard, so removing the reply keyboard and showing inline buttons takes
// two messages.
func render(chatID int64, reply Reply) []tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	switch {
	case reply.RequestContact:
		keyboard := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("📱 Надіслати контакт")))
		keyboard.OneTimeKeyboard = true
		keyboard.ResizeKeyboard = true
		msg.ReplyMarkup = keyboard
	case reply.RemoveKeyboard && len(reply.Buttons) > 0:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
		menu := tgbotapi.NewMessage(chatID, "⬇️")
		menu.ReplyMarkup = inlineKeyboard(reply.Buttons)
		return []tgbotapi.MessageConfig{msg, menu}
	case reply.RemoveKeyboard:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	case len(reply.Buttons) > 0:
		msg.ReplyMarkup = inlineKeyboard(reply.Buttons)
	}
	return []tgbotapi.MessageConfig{msg}
}

func inlineKeyboard(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		keyboard = append(keyboard, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}
