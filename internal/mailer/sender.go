package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/docuflow/therenotify/internal/domain"
)

// ErrTransport marks delivery failures caused by the SMTP server or the
// network rather than by a bad message.
var ErrTransport = errors.New("smtp transport error")

// Message is one rendered email ready for delivery.
type Message struct {
	To       string
	From     string
	FromName string
	Subject  string
	BodyHTML string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers messages through one SMTP endpoint.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	timeout  time.Duration
}

// NewSMTPSender builds a sender from a stored SMTP configuration.
func NewSMTPSender(cfg domain.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		useTLS:   cfg.UseTLS,
		timeout:  30 * time.Second,
	}
}

// Send delivers one message. The connection honors the context deadline
// through the dial timeout; an established session runs to completion.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	log.Printf("[smtp] sending to %s via %s (tls=%v)", msg.To, addr, s.useTLS)

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrTransport, addr, err)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: handshake with %s: %v", ErrTransport, addr, err)
	}
	defer client.Close()

	if s.useTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("%w: server %s does not support STARTTLS", ErrTransport, addr)
		}
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return fmt.Errorf("%w: starttls: %v", ErrTransport, err)
		}
	}

	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("%w: auth as %s: %v", ErrTransport, s.username, err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("%w: mail from %s: %v", ErrTransport, msg.From, err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("%w: rcpt to %s: %v", ErrTransport, msg.To, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: data: %v", ErrTransport, err)
	}
	if _, err := w.Write(buildMIME(msg)); err != nil {
		w.Close()
		return fmt.Errorf("%w: writing body: %v", ErrTransport, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: closing data: %v", ErrTransport, err)
	}

	if err := client.Quit(); err != nil {
		log.Printf("[smtp] quit after successful send to %s: %v", msg.To, err)
	}
	log.Printf("[smtp] sent to %s", msg.To)
	return nil
}

// buildMIME assembles an HTML email with headers suitable for common
// mail clients.
func buildMIME(msg Message) []byte {
	fromName := msg.FromName
	if fromName == "" {
		fromName = "Workflow Reports"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", fromName), msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.BodyHTML)
	b.WriteString("\r\n")
	return []byte(b.String())
}
