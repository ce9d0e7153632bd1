package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"mime"
	"mime/quotedprintable"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"password_expiry_notifier/internal/domain/mail"
)

var ErrNoRecipients = errors.New("message has no recipients")

// Config describes the relay used for notifications.
type Config struct {
	Host     string
	Port     int
	Username string // empty disables AUTH
	Password string
	StartTLS bool
	Timeout  time.Duration
}

// SMTPSender delivers messages through a single SMTP relay, one connection per message.
type SMTPSender struct {
	cfg   Config
	plain *bluemonday.Policy
}

func NewSMTPSender(cfg Config) *SMTPSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPSender{cfg: cfg, plain: bluemonday.StrictPolicy()}
}

func (s *SMTPSender) Send(ctx context.Context, msg *mail.Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer client.Close()

	domain := domainOf(msg.From)
	if err := client.Hello(domain); err != nil {
		return fmt.Errorf("hello failed: %w", err)
	}

	if s.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth failed: %w", err)
		}
	}

	if err := client.Mail(envelopeAddress(msg.From)); err != nil {
		return fmt.Errorf("mail from failed: %w", err)
	}
	for _, to := range msg.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("rcpt to %s failed: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data failed: %w", err)
	}
	if _, err := w.Write(s.Build(msg, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("writing message failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close failed: %w", err)
	}

	return client.Quit()
}

// Build renders msg as an RFC 5322 message. HTML bodies are sent as
// multipart/alternative with a tag-stripped plain-text part first.
func (s *SMTPSender) Build(msg *mail.Message, now time.Time) []byte {
	var buf bytes.Buffer
	domain := domainOf(msg.From)

	header := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	header("Date", now.Format(time.RFC1123Z))
	header("From", msg.From)
	header("To", strings.Join(msg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain))
	header("MIME-Version", "1.0")

	if !msg.IsHTML {
		header("Content-Type", `text/plain; charset="utf-8"`)
		header("Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		writeQuotedPrintable(&buf, msg.Body)
		return buf.Bytes()
	}

	boundary := "alt-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	header("Content-Type", fmt.Sprintf(`multipart/alternative; boundary="%s"`, boundary))
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	writeQuotedPrintable(&buf, s.plainText(msg.Body))
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
	writeQuotedPrintable(&buf, msg.Body)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// plainText turns block-level tags into line breaks before stripping the rest.
func (s *SMTPSender) plainText(body string) string {
	r := strings.NewReplacer("<br>", "\n", "</p>", "\n\n", "<hr>", "\n----\n", "</div>", "\n")
	text := s.plain.Sanitize(r.Replace(body))
	return strings.TrimSpace(html.UnescapeString(text))
}

func writeQuotedPrintable(buf *bytes.Buffer, body string) {
	qp := quotedprintable.NewWriter(buf)
	qp.Write([]byte(body))
	qp.Close()
}

func domainOf(addr string) string {
	addr = envelopeAddress(addr)
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return "localhost"
}

// envelopeAddress strips a display name from a From header value.
func envelopeAddress(from string) string {
	if a, err := netmail.ParseAddress(from); err == nil {
		return a.Address
	}
	return from
}
