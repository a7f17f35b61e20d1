package utils

import (
	"crypto/tls"
	"fmt"
	"log"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/Ev0rain/Phishly/config"
)

// OutgoingEmail holds everything needed to dispatch a single message.
type OutgoingEmail struct {
	To        string
	FromName  string
	FromEmail string
	Subject   string
	HTMLBody  string
	TextBody  string
}

// Mailer sends a rendered email over some transport.
type Mailer interface {
	Send(email OutgoingEmail) error
}

// SMTPMailer delivers through an SMTP relay using gomail.
type SMTPMailer struct {
	Config config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{Config: cfg}
}

func (s *SMTPMailer) Send(email OutgoingEmail) error {
	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", email.FromName, email.FromEmail))
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", email.Subject)
	if email.TextBody != "" {
		m.SetBody("text/plain", email.TextBody)
		m.AddAlternative("text/html", email.HTMLBody)
	} else {
		m.SetBody("text/html", email.HTMLBody)
	}

	d := gomail.NewDialer(s.Config.Host, s.Config.Port, s.Config.Username, s.Config.Password)
	d.SSL = s.Config.UseSSL
	if s.Config.UseTLS {
		d.TLSConfig = &tls.Config{ServerName: s.Config.Host}
	}

	done := make(chan error, 1)
	go func() {
		done <- d.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", email.To, err)
		}
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out sending email to %s", email.To)
	}
}

// MockMailer logs sends instead of delivering them. Used when SMTP_MOCK
// is set and in tests.
type MockMailer struct {
	Logger *log.Logger

	mu   sync.Mutex
	sent []OutgoingEmail

	// FailNext makes the next n sends return an error
	FailNext int
}

func NewMockMailer(logger *log.Logger) *MockMailer {
	return &MockMailer{Logger: logger}
}

func (m *MockMailer) Send(email OutgoingEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext > 0 {
		m.FailNext--
		return fmt.Errorf("mock transport failure for %s", email.To)
	}
	m.sent = append(m.sent, email)
	if m.Logger != nil {
		m.Logger.Printf("MOCK SEND to=%s subject=%q", email.To, email.Subject)
	}
	return nil
}

// Sent returns a copy of everything delivered so far.
func (m *MockMailer) Sent() []OutgoingEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutgoingEmail, len(m.sent))
	copy(out, m.sent)
	return out
}
