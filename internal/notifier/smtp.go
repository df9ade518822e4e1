package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/support-inbox/pkg/logger"
)

// SMTPNotifier sends plain-text mail through a single SMTP server.
type SMTPNotifier struct {
	cfg  SMTPConfig
	addr string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}

	n := &SMTPNotifier{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		send: smtp.SendMail,
	}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n, nil
}

// Send runs the SMTP exchange in the background; net/smtp has no context
// support, so a cancelled ctx abandons the exchange.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) (*SendResult, error) {
	msg := buildMail(n.cfg.From, to, subject, body, time.Now())

	done := make(chan error, 1)
	go func() {
		done <- n.send(n.addr, n.auth, n.cfg.From, []string{to}, msg)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("smtp send to %s: %w", n.addr, ctx.Err())
	case err := <-done:
		if err != nil {
			logger.Warn("[notifier] smtp send failed", "addr", n.addr, "error", err)
			return &SendResult{Success: false, Error: err.Error(), Provider: DriverSMTP}, nil
		}
	}
	return &SendResult{Success: true, Provider: DriverSMTP}, nil
}

func (n *SMTPNotifier) Close() error {
	return nil
}

func buildMail(from, to, subject, body string, at time.Time) []byte {
	var b bytes.Buffer
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + at.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}
