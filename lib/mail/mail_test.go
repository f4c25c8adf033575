package mail

import (
	"context"
	"io"
	"log"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestNewMailerValidation(t *testing.T) {
	_, err := NewMailer(Options{Port: 465, To: []string{"a@example.com"}, Username: "me@example.com"})
	require.Error(t, err)

	_, err = NewMailer(Options{Host: "smtp.example.com", Port: 465, Username: "me@example.com"})
	require.Error(t, err)

	_, err = NewMailer(Options{Host: "smtp.example.com", Port: 465, To: []string{"a@example.com"}})
	require.Error(t, err)

	_, err = NewMailer(Options{
		Host: "smtp.example.com", Port: 465, To: []string{"a@example.com"},
		Username: "me@example.com", Security: "carrier-pigeon",
	})
	require.Error(t, err)

	m, err := NewMailer(Options{Host: "smtp.example.com", Port: 465, To: []string{"a@example.com"}, Username: "me@example.com"})
	require.NoError(t, err)
	require.Equal(t, SecuritySSL, m.opts.Security)
	require.Equal(t, "me@example.com", m.opts.From)
	require.Equal(t, "smtp.example.com:465", m.addr())
}

var cidRegex = regexp.MustCompile(`cid:([a-z0-9]+)`)

func TestBuildEmbedsImage(t *testing.T) {
	m, err := NewMailer(Options{
		Host: "smtp.example.com", Port: 465,
		Username: "me@example.com", To: []string{"a@example.com", "b@example.com"},
	})
	require.NoError(t, err)

	mail, err := m.build(Message{
		Subject:   "GKCX",
		Title:     "录取 <结果>",
		Text:      "姓名 张三",
		Image:     pngBytes,
		ImageName: "gkcx.png",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, mail.To)
	require.Equal(t, "GKCX", mail.Subject)
	require.Equal(t, "姓名 张三", string(mail.Text))
	require.Contains(t, string(mail.HTML), "录取 &lt;结果&gt;")

	matches := cidRegex.FindStringSubmatch(string(mail.HTML))
	require.Len(t, matches, 2)
	require.Len(t, mail.Attachments, 1)
	require.True(t, mail.Attachments[0].HTMLRelated)
	require.Equal(t, "<"+matches[1]+">", mail.Attachments[0].Header.Get("Content-ID"))

	raw, err := mail.Bytes()
	require.NoError(t, err)
	require.Contains(t, string(raw), "multipart/related")
}

func TestBuildWithoutImage(t *testing.T) {
	m, err := NewMailer(Options{Host: "smtp.example.com", Port: 25, Username: "me@example.com", To: []string{"a@example.com"}})
	require.NoError(t, err)

	mail, err := m.build(Message{Subject: "GKCX", Title: "nothing"})
	require.NoError(t, err)
	require.Empty(t, mail.Attachments)
	require.Contains(t, string(mail.HTML), "nothing")
}

func TestSendCanceled(t *testing.T) {
	m, err := NewMailer(Options{Host: "smtp.example.com", Port: 25, Username: "me@example.com", To: []string{"a@example.com"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = m.Send(ctx, Message{Subject: "GKCX"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSendToFakeServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	smtpServer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "haravich/fake-smtp-server",
			ExposedPorts: []string{"1025/tcp"},
			WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, smtpServer.Terminate(context.Background()))
	})

	host, err := smtpServer.Host(ctx)
	require.NoError(t, err)
	port, err := smtpServer.MappedPort(ctx, "1025/tcp")
	require.NoError(t, err)

	m, err := NewMailer(Options{
		Host:     host,
		Port:     port.Int(),
		Username: "gkcx@example.com",
		Password: "default",
		To:       []string{"someone@example.com"},
		Security: SecurityPlain,
	})
	require.NoError(t, err)

	err = m.Send(ctx, Message{
		Subject:   "GKCX",
		Title:     "result",
		Text:      "result",
		Image:     pngBytes,
		ImageName: "gkcx.png",
	})
	require.NoError(t, err)
}
