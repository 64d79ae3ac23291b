package service

import (
	"fmt"
	"log"

	"github.com/resend/resend-go/v2"
)

// OtpSender - канал доставки одноразовых кодов. Доставка по SMS живет
// за пределами сервиса; процесс работает с каналом через этот интерфейс.
type OtpSender interface {
	Send(destination, code string) error
}

// ResendOtpSender доставляет коды через Resend
type ResendOtpSender struct {
	client *resend.Client
	from   string
}

// NewResendOtpSender создает отправителя кодов через Resend
func NewResendOtpSender(apiKey, from string) *ResendOtpSender {
	return &ResendOtpSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Send отправляет код подтверждения
func (s *ResendOtpSender) Send(destination, code string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{destination},
		Subject: "Votre code de vérification",
		Html: fmt.Sprintf(
			"<p>Votre code de vérification&nbsp;: <strong>%s</strong></p><p>Le code expire dans 15 minutes.</p>",
			code,
		),
	}
	sent, err := s.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("resend delivery failed: %w", err)
	}
	log.Printf("[OtpSender] Код отправлен на %s (id доставки %s)", destination, sent.Id)
	return nil
}

// LogOtpSender пишет код в лог вместо отправки. Для локальной разработки
// без ключа Resend.
type LogOtpSender struct{}

// Send логирует код
func (LogOtpSender) Send(destination, code string) error {
	log.Printf("[OtpSender] (dev) Код для %s: %s", destination, code)
	return nil
}
