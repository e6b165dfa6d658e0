// Package smtpmail отправляет email через SMTP (STARTTLS + PLAIN auth).
package smtpmail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/BearBump/ShipTrack/internal/integrations/sender"
	"github.com/pkg/errors"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

type Sender struct {
	cfg Config
}

func New(cfg Config) *Sender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.From == "" {
		cfg.From = "no-reply@example.com"
	}
	return &Sender{cfg: cfg}
}

func (s *Sender) Send(ctx context.Context, msg sender.Message) error {
	body, err := buildMessage(s.cfg.From, msg)
	if err != nil {
		return &sender.Permanent{Err: err}
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	d := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "smtp dial")
	}
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout))

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "smtp handshake")
	}
	defer c.Close()

	if s.cfg.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return &sender.Permanent{Err: errors.New("smtp server does not support STARTTLS")}
		}
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return errors.Wrap(err, "smtp starttls")
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return classify(err, "smtp auth")
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return classify(err, "smtp mail from")
	}
	if err := c.Rcpt(msg.To); err != nil {
		return classify(err, "smtp rcpt to")
	}
	w, err := c.Data()
	if err != nil {
		return classify(err, "smtp data")
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "smtp write body")
	}
	if err := w.Close(); err != nil {
		return classify(err, "smtp end data")
	}
	return errors.Wrap(c.Quit(), "smtp quit")
}

// classify: 5xx ответ сервера считается постоянной ошибкой, 4xx и сетевые можно повторить.
func classify(err error, msg string) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return &sender.Permanent{Err: errors.Wrap(err, msg)}
	}
	return errors.Wrap(err, msg)
}

// buildMessage собирает multipart/alternative: text/plain + text/html.
func buildMessage(from string, msg sender.Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	parts := []struct {
		ctype, body string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", p.ctype)
		h.Set("Content-Transfer-Encoding", "8bit")
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, errors.Wrap(err, "create mime part")
		}
		if _, err := pw.Write([]byte(p.body)); err != nil {
			return nil, errors.Wrap(err, "write mime part")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close mime writer")
	}
	return buf.Bytes(), nil
}
