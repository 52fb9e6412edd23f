package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"

	"github.com/jogardn/laser-orders/pkg/models"
)

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails the customer when an order is placed and when its
// payment is confirmed.
type EmailNotifier struct {
	cfg  SMTPConfig
	send sendFunc
}

func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailNotifier) Name() string { return "email" }

var emailTemplates = template.Must(template.New("email").Parse(`
{{define "order_created"}}<h2>Дякуємо за замовлення!</h2>
<p>Вітаємо, {{.Customer.Name}}.</p>
<p>Ваше замовлення <b>{{.OrderNumber}}</b> прийнято в обробку.</p>
<p>Сума: <b>{{.Pricing.TotalPrice.StringFixed 2}} {{.Pricing.Currency}}</b></p>
<p>Ми зв'яжемося з вами найближчим часом.</p>{{end}}
{{define "payment_confirmed"}}<h2>Оплату отримано</h2>
<p>Вітаємо, {{.Customer.Name}}.</p>
<p>Оплата замовлення <b>{{.OrderNumber}}</b> на суму <b>{{.Pricing.TotalPrice.StringFixed 2}} {{.Pricing.Currency}}</b> підтверджена.</p>{{end}}
`))

var emailSubjects = map[EventType]string{
	EventOrderCreated:     "Замовлення %s прийнято",
	EventPaymentConfirmed: "Оплата замовлення %s підтверджена",
}

func (e *EmailNotifier) Notify(ctx context.Context, event Event) error {
	subject, ok := emailSubjects[event.Type]
	if !ok || event.Order.Customer.Email == "" {
		return nil
	}
	if e.cfg.Host == "" {
		return ErrNotConfigured
	}

	body, err := renderEmail(event.Type, event.Order)
	if err != nil {
		return err
	}

	to := event.Order.Customer.Email
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		e.cfg.From, to, mime.QEncoding.Encode("utf-8", fmt.Sprintf(subject, event.Order.OrderNumber)), body)

	var auth smtp.Auth
	if e.cfg.User != "" {
		auth = smtp.PlainAuth("", e.cfg.User, e.cfg.Password, e.cfg.Host)
	}

	// net/smtp has no context support; run the send so ctx can cut the wait.
	done := make(chan error, 1)
	go func() {
		done <- e.send(e.cfg.Host+":"+e.cfg.Port, auth, e.cfg.From, []string{to}, []byte(msg))
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func renderEmail(eventType EventType, order models.Order) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, string(eventType), order); err != nil {
		return "", fmt.Errorf("render %s email: %w", eventType, err)
	}
	return buf.String(), nil
}
