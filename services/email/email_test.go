package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func testConf() *core.Config {
	return &core.Config{AppName: "Elimu", DefaultFromEmail: mail.Address{Name: "Elimu", Address: "noreply@elimu.test"}}
}

func TestConsoleServiceMock(t *testing.T) {
	svc := NewConsoleServiceMock(testConf(), nopLogger{})

	svc.SendMessages(
		&core.EmailMessage{To: []mail.Address{{Address: "jane@school.test"}}, Subject: "Hi", BodyStr: "hello"},
		&core.EmailMessage{Subject: "nobody", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "joe@school.test"}}, Subject: "empty"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi", sent[0].Subject)
	assert.Equal(t, "hello", sent[0].TextContent)

	svc.Reset()
	assert.Empty(t, svc.Sent())
}

func TestConsoleService_format(t *testing.T) {
	svc := &consoleService{from: testConf().DefaultFromEmail, subjPrefix: "[Elimu] ", logger: nopLogger{}}
	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@school.test"}},
		Subject:     "Payment received",
		TextContent: "thanks",
		HTMLContent: "<p>thanks</p>",
	}
	require.NoError(t, msg.Attach(strings.NewReader("receipt"), "receipt.txt", "text/plain"))

	body, err := svc.format(msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Elimu] Payment received")
	assert.Contains(t, body, `To: "Jane" <jane@school.test>`)
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "<p>thanks</p>")
	assert.Contains(t, body, "filename=receipt.txt")

	var out bytes.Buffer
	svc.out = &out
	svc.write(msg)
	assert.Equal(t, body[strings.Index(body, "MIME"):strings.Index(body, "Date")], out.String()[strings.Index(out.String(), "MIME"):strings.Index(out.String(), "Date")])
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConf(), nopLogger{}).(*sendgridService)
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Address: "a@school.test"}},
		Cc:          []mail.Address{{Address: "b@school.test"}},
		Subject:     "Alert",
		TextContent: "text only",
	})

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Elimu] Alert", m.Personalizations[0].Subject)
	assert.Len(t, m.Personalizations[0].To, 1)
	assert.Len(t, m.Personalizations[0].CC, 1)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "noreply@elimu.test", m.From.Address)
}
