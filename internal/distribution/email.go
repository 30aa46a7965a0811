package distribution

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/circuitbreaker"
)

// Mailer sends plain-text mail through a single SMTP relay. The relay
// address is one circuit breaker destination.
type Mailer struct {
	addr    string // host:port
	from    string
	breaker *circuitbreaker.Breaker

	// send is swapped in tests.
	send func(addr, from string, to []string, msg []byte) error
}

func NewMailer(addr, from string, breaker *circuitbreaker.Breaker) *Mailer {
	return &Mailer{
		addr:    addr,
		from:    from,
		breaker: breaker,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

// Send delivers one message to all recipients in a single SMTP transaction.
func (m *Mailer) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.breaker != nil {
		if err := m.breaker.Allow(m.addr); err != nil {
			return fmt.Errorf("mail relay %s: %w", m.addr, err)
		}
	}

	msg := buildMessage(m.from, recipients, subject, body)
	if err := m.send(m.addr, m.from, recipients, msg); err != nil {
		if m.breaker != nil {
			m.breaker.RecordFailure(m.addr)
		}
		return fmt.Errorf("send mail: %w", err)
	}

	if m.breaker != nil {
		m.breaker.RecordSuccess(m.addr)
	}
	return nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
