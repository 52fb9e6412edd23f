package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jogardn/laser-orders/internal/circuitbreaker"
	"github.com/jogardn/laser-orders/pkg/models"
)

var ErrNotConfigured = errors.New("channel not configured")

// MessageSender is the part of the Telegram client the notifier uses.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts new orders and confirmed payments to the operator
// chat.
type TelegramNotifier struct {
	sender  MessageSender
	chatID  int64
	breaker *circuitbreaker.CircuitBreaker
}

func NewTelegramNotifier(sender MessageSender, chatID int64, breakers *circuitbreaker.Manager) *TelegramNotifier {
	return &TelegramNotifier{
		sender:  sender,
		chatID:  chatID,
		breaker: breakers.GetOrCreate("telegram", circuitbreaker.Config{MaxFailures: 3, Timeout: time.Minute}),
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Notify(ctx context.Context, event Event) error {
	var text string
	switch event.Type {
	case EventOrderCreated:
		text = FormatOperatorOrder(event.Order)
	case EventPaymentConfirmed:
		text = formatPaymentConfirmed(event.Order)
	default:
		return nil
	}
	if t.sender == nil || t.chatID == 0 {
		return ErrNotConfigured
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	return t.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		_, err := t.sender.Send(msg)
		return err
	})
}

// FormatOperatorOrder renders the operator summary of an order in Telegram
// HTML.
func FormatOperatorOrder(o models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 <b>НОВЕ ЗАМОВЛЕННЯ %s</b>\n\n", esc(o.OrderNumber))

	b.WriteString("<b>👤 Клієнт:</b>\n")
	fmt.Fprintf(&b, "Ім'я: %s\n", esc(o.Customer.Name))
	fmt.Fprintf(&b, "Email: %s\n", esc(o.Customer.Email))
	fmt.Fprintf(&b, "Телефон: %s\n", esc(o.Customer.Phone))
	if o.Customer.City != "" || o.Customer.Address != "" {
		fmt.Fprintf(&b, "Адреса: %s\n", esc(strings.Trim(o.Customer.City+", "+o.Customer.Address, ", ")))
	}

	fmt.Fprintf(&b, "\n<b>🛠 Послуга:</b> %s\n", esc(string(o.Service())))
	switch d := o.Details.(type) {
	case models.EngravingDetails:
		fmt.Fprintf(&b, "Матеріал: %s\n", esc(d.Material))
		if d.Size != "" {
			fmt.Fprintf(&b, "Розмір: %s, кількість: %d\n", esc(d.Size), d.Quantity)
		} else {
			fmt.Fprintf(&b, "Площа: %s мм², складність: %s%%\n", d.Area.String(), d.Complexity.String())
		}
	case models.CuttingDetails:
		fmt.Fprintf(&b, "Матеріал: %s\n", esc(d.Material))
		fmt.Fprintf(&b, "Довжина різу: %s м, деталей: %d\n", d.Length.String(), d.DetailCount)
	case models.ShopDetails:
		for i, item := range d.Items {
			fmt.Fprintf(&b, "%d. %s × %d — %s₴\n", i+1, esc(item.Name), item.Quantity, item.Price.StringFixed(2))
		}
	case models.DesignDetails:
		if d.Description != "" {
			fmt.Fprintf(&b, "%s\n", esc(d.Description))
		}
	case models.ConsultationDetails:
		if d.Topic != "" {
			fmt.Fprintf(&b, "Тема: %s\n", esc(d.Topic))
		}
	}

	b.WriteString("\n<b>💰 Сума замовлення:</b>\n")
	fmt.Fprintf(&b, "%s₴ (%s)", o.Pricing.TotalPrice.StringFixed(2), esc(o.Pricing.Currency))
	if o.Pricing.Discount.IsPositive() {
		fmt.Fprintf(&b, ", знижка %s₴", o.Pricing.Discount.StringFixed(2))
	}
	b.WriteString("\n")

	if o.Notes != "" {
		fmt.Fprintf(&b, "\n<b>📝 Коментарі:</b>\n%s\n", esc(o.Notes))
	}
	return b.String()
}

func formatPaymentConfirmed(o models.Order) string {
	return fmt.Sprintf("💳 <b>Оплата отримана</b>\nЗамовлення %s\nСума: %s₴\nСпосіб: %s\nТранзакція: %s",
		esc(o.OrderNumber), o.Pricing.TotalPrice.StringFixed(2), esc(string(o.Payment.Method)), esc(o.Payment.TransactionID))
}

func esc(s string) string {
	return html.EscapeString(s)
}
