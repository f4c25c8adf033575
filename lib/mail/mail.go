package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/sankforever/gkcx/lib/telemetry"

	"github.com/jordan-wright/email"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("lib/mail")

type Security string

const (
	// SecuritySSL is implicit TLS, usually on port 465.
	SecuritySSL      Security = "ssl"
	SecurityStartTLS Security = "starttls"
	SecurityPlain    Security = "plain"
)

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From     string
	To       []string
	Security Security
}

type Message struct {
	Subject string
	// Title is shown above the image.
	Title string
	// Text is the plain text alternative.
	Text      string
	Image     []byte
	ImageName string
}

type Mailer struct {
	opts Options
}

func NewMailer(opts Options) (Mailer, error) {
	if opts.Host == "" || opts.Port == 0 {
		return Mailer{}, fmt.Errorf("mail: host and port are required")
	}
	if len(opts.To) == 0 {
		return Mailer{}, fmt.Errorf("mail: at least one recipient is required")
	}
	if opts.From == "" {
		opts.From = opts.Username
	}
	if opts.From == "" {
		return Mailer{}, fmt.Errorf("mail: sender address is required")
	}
	switch opts.Security {
	case "":
		opts.Security = SecuritySSL
	case SecuritySSL, SecurityStartTLS, SecurityPlain:
	default:
		return Mailer{}, fmt.Errorf("mail: unknown security mode %q", opts.Security)
	}
	return Mailer{opts: opts}, nil
}

const htmlTemplate = `<html>
  <body>
    <p>%s</p>
    <img src="cid:%s" width="500">
  </body>
</html>`

func (m Mailer) build(msg Message) (*email.Email, error) {
	mail := email.NewEmail()
	mail.From = m.opts.From
	mail.To = m.opts.To
	mail.Subject = msg.Subject
	mail.Text = []byte(msg.Text)

	if len(msg.Image) == 0 {
		mail.HTML = []byte(fmt.Sprintf("<html><body><p>%s</p></body></html>", html.EscapeString(msg.Title)))
		return mail, nil
	}

	cid, err := random.String(16)
	if err != nil {
		return nil, err
	}
	cid = strings.ToLower(cid)

	name := msg.ImageName
	if name == "" {
		name = "result.png"
	}
	attachment, err := mail.Attach(bytes.NewReader(msg.Image), name, "image/png")
	if err != nil {
		return nil, err
	}
	attachment.HTMLRelated = true
	attachment.Header.Set("Content-ID", fmt.Sprintf("<%s>", cid))

	mail.HTML = []byte(fmt.Sprintf(htmlTemplate, html.EscapeString(msg.Title), cid))
	return mail, nil
}

func (m Mailer) addr() string {
	return net.JoinHostPort(m.opts.Host, strconv.Itoa(m.opts.Port))
}

func (m Mailer) auth() smtp.Auth {
	if m.opts.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
}

// Send delivers the message. The smtp library has no context support, ctx
// is only checked before dialing.
func (m Mailer) Send(ctx context.Context, msg Message) error {
	ctx, span := tracer.Start(ctx, "mailer:Send")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	mail, err := m.build(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build email")
		return err
	}

	tlsConfig := &tls.Config{ServerName: m.opts.Host}
	switch m.opts.Security {
	case SecuritySSL:
		err = mail.SendWithTLS(m.addr(), m.auth(), tlsConfig)
	case SecurityStartTLS:
		err = mail.SendWithStartTLS(m.addr(), m.auth(), tlsConfig)
	default:
		err = mail.Send(m.addr(), m.auth())
		if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
			err = mail.Send(m.addr(), nil)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
