package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Noctocode/worken-ai/internal/config"
	"github.com/Noctocode/worken-ai/internal/logging"
)

func TestRenderInvitation(t *testing.T) {
	msg, err := RenderInvitation(Invitation{
		To:          "bob@example.com",
		TeamName:    "Research",
		InviterName: "Ada",
		Role:        "advanced",
		Token:       "abc123",
	}, "https://app.worken.ai/")
	require.NoError(t, err)

	assert.Equal(t, "Ada invited you to join Research on WorkenAI", msg.Subject)
	assert.Equal(t, "https://app.worken.ai/invite?token=abc123", msg.AcceptURL)
	assert.Contains(t, msg.HTML, msg.AcceptURL)
	assert.Contains(t, msg.HTML, "advanced")
}

func TestRenderInvitation_InviterFallbackAndEscaping(t *testing.T) {
	msg, err := RenderInvitation(Invitation{TeamName: "<b>Ops</b>", Token: "t"}, "http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "A team member invited you to join <b>Ops</b> on WorkenAI", msg.Subject)
	assert.NotContains(t, msg.HTML, "<b>Ops</b>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Ops&lt;/b&gt;")
}

func TestNew_SelectsTransport(t *testing.T) {
	assert.IsType(t, &LogSender{}, New(config.MailConfig{}, "http://localhost:3000", nil))
	assert.IsType(t, &SMTPSender{}, New(config.MailConfig{Host: "smtp.example.com", Port: 587}, "http://localhost:3000", nil))
}

func TestLogSender(t *testing.T) {
	logger := logging.NewTestLogger()
	s := NewLogSender("http://localhost:3000", logger.Underlying())

	require.NoError(t, s.SendTeamInvitation(context.Background(), Invitation{To: "bob@example.com", TeamName: "Research", Token: "secret-token"}))
	logger.AssertLogged(t, zapcore.InfoLevel, "invitation not sent")
	logger.AssertField(t, "mail transport disabled, invitation not sent", "team", "Research")
}
