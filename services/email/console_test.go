package emailsvc

import (
	"bytes"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/pixelforegllc/quantummftools-dash/assets"
	"github.com/pixelforegllc/quantummftools-dash/core"
	logsvc "github.com/pixelforegllc/quantummftools-dash/services/logger"
	"github.com/pixelforegllc/quantummftools-dash/tests"
)

type resetData struct {
	Username string
	UID      string
	Token    string
}

func newTestLogger(t *testing.T, conf *core.Config) core.Logger {
	l := logsvc.NewRollbarLogger(zaptest.NewLogger(t), conf)
	l.Enable(false)
	return l
}

func TestConsoleService_SendMessages(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	conf := testutil.NewConfig()
	require.NoError(t, core.ParseEmailTemplates(assets.FS, conf))

	svc := NewConsoleService(conf, newTestLogger(t, conf))
	out := new(bytes.Buffer)
	svc.out = out
	SentMessages = nil

	to := []mail.Address{{Name: "Jane", Address: "jane@example.com"}}
	svc.SendMessages(
		&core.EmailMessage{
			To:           to,
			Subject:      "Password Reset",
			TemplateName: "password_reset",
			TemplateData: resetData{Username: "jane", UID: "uid-1", Token: "tok-1"},
		},
		&core.EmailMessage{
			To:      to,
			Cc:      []mail.Address{{Address: "ops@example.com"}},
			Subject: "Plain",
			BodyStr: "just text",
		},
		&core.EmailMessage{Subject: "nobody", BodyStr: "dropped"}, // no recipients
	)
	svc.Wait()

	require.Len(t, SentMessages, 2)
	bySubject := map[string]core.EmailMessage{}
	for _, m := range SentMessages {
		bySubject[m.Subject] = m
	}

	reset := bySubject["Password Reset"]
	assert.Contains(t, reset.TextContent, "Hello jane,")
	assert.Contains(t, reset.TextContent, "http://localhost:3001/reset-password/uid-1/tok-1")
	assert.Contains(t, reset.HTMLContent, `href="http://localhost:3001/reset-password/uid-1/tok-1"`)

	plain := bySubject["Plain"]
	assert.Equal(t, "just text", plain.TextContent)
	assert.Empty(t, plain.HTMLContent)

	printed := out.String()
	assert.Contains(t, printed, "Subject: [QuantumMF Tools] Password Reset\r\n")
	assert.Contains(t, printed, "Subject: [QuantumMF Tools] Plain\r\n")
	assert.Contains(t, printed, `To: "Jane" <jane@example.com>`)
	assert.Contains(t, printed, "CC: <ops@example.com>")
	assert.Contains(t, printed, "Content-Type: text/html; charset=utf-8")
	assert.NotContains(t, printed, "nobody")
}

func TestConsoleService_renderError(t *testing.T) {
	conf := testutil.NewConfig()
	require.NoError(t, core.ParseEmailTemplates(assets.FS, conf))

	svc := NewConsoleService(conf, newTestLogger(t, conf))
	svc.out = new(bytes.Buffer)
	SentMessages = nil

	// strict templates refuse missing keys
	svc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: "jane@example.com"}},
		Subject:      "Broken",
		TemplateName: "password_reset",
		TemplateData: map[string]string{},
	})
	svc.Wait()
	assert.Empty(t, SentMessages)
}

func TestConsoleServiceMock(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	conf := testutil.NewConfig()
	svc := NewConsoleServiceMock(conf, newTestLogger(t, conf))
	SentMessages = nil

	svc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: "jane@example.com"}},
		Subject: "Sync",
		BodyStr: "sent before returning",
	})
	require.Len(t, SentMessages, 1)
	assert.Equal(t, "Sync", SentMessages[0].Subject)
}
