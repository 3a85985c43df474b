// Package email sends price-drop notifications over SMTP.
package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/shopspring/decimal"

	"farearound/internal/common/errors"
	"farearound/internal/common/logging"
	"farearound/internal/config"
)

// Sender is the notification surface the alert pipeline depends on.
type Sender interface {
	// SendPriceDrop notifies a traveler that the fare for their saved route
	// dropped from oldPrice to newPrice. Fails with SendError.
	SendPriceDrop(toEmail, origin, destination, departureDate string, oldPrice, newPrice decimal.Decimal, currency string) error
}

// Service sends email through the configured SMTP relay. Port 465 uses
// implicit TLS; any other port goes through STARTTLS (the smtp package
// upgrades automatically when the server advertises it).
type Service struct {
	config *config.Config
	logger logging.Logger
}

// NewService creates an email service.
func NewService(cfg *config.Config, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Service{config: cfg, logger: logger}
}

// SendPriceDrop implements Sender.
func (s *Service) SendPriceDrop(toEmail, origin, destination, departureDate string, oldPrice, newPrice decimal.Decimal, currency string) error {
	if !s.config.SMTPConfigured() {
		return errors.SendError("SMTP is not configured; set EMAIL_HOST, EMAIL_PORT, EMAIL_USER and EMAIL_PASSWORD", nil)
	}

	toEmail = strings.TrimSpace(toEmail)
	if !ValidateAddress(toEmail) {
		return errors.SendError(fmt.Sprintf("invalid recipient address %q", toEmail), nil)
	}

	origin = strings.ToUpper(strings.TrimSpace(origin))
	destination = strings.ToUpper(strings.TrimSpace(destination))

	subject := fmt.Sprintf("Price dropped for %s → %s 🎉", origin, destination)
	body := fmt.Sprintf(
		"Good news.\n\nThe price for %s → %s on %s dropped:\n\nOld price: %s\nNew price: %s\n\nCheck FareAround now.\n",
		origin, destination, departureDate,
		formatMoney(currency, oldPrice),
		formatMoney(currency, newPrice),
	)

	if err := s.send(toEmail, subject, body); err != nil {
		return errors.SendError(fmt.Sprintf("failed to send price drop email to %s", toEmail), err)
	}

	s.logger.Info("Sent price drop email",
		logging.String("to", toEmail),
		logging.String("route", origin+"-"+destination),
	)
	return nil
}

func (s *Service) send(to, subject, body string) error {
	msg := buildMessage(s.fromHeader(), to, subject, body)
	auth := smtp.PlainAuth("", s.config.EmailUser, s.config.EmailPassword, s.config.EmailHost)
	addr := s.config.EmailHost + ":" + s.config.EmailPort

	if s.config.EmailPort == "465" {
		return s.sendImplicitTLS(addr, auth, to, msg)
	}
	return smtp.SendMail(addr, auth, s.config.EmailUser, []string{to}, msg)
}

func (s *Service) fromHeader() string {
	if s.config.EmailFromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.EmailFromName, s.config.EmailUser)
	}
	return s.config.EmailUser
}

// sendImplicitTLS sends over a TLS connection established up front, as
// required by SMTPS servers on port 465.
func (s *Service) sendImplicitTLS(addr string, auth smtp.Auth, to string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.EmailHost})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.EmailHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(s.config.EmailUser); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// formatMoney renders "INR 4500" for whole amounts and two decimal places
// otherwise.
func formatMoney(currency string, amount decimal.Decimal) string {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == "" {
		cur = "INR"
	}
	if amount.Equal(amount.Truncate(0)) {
		return fmt.Sprintf("%s %s", cur, amount.Truncate(0).String())
	}
	return fmt.Sprintf("%s %s", cur, amount.StringFixed(2))
}

// ValidateAddress performs a light sanity check on an email address.
func ValidateAddress(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	return strings.Contains(parts[1], ".")
}
