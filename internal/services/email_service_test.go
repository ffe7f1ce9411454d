package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestAWSSESEmailService_SendPasswordResetEmail(t *testing.T) {
	client := &fakeSES{}
	svc := NewSESEmailServiceWithClient(client, "no-reply@garage.example.com", discardLogger())

	link := "https://garage.example.com/reset-password?token=abc&x=<y>"
	err := svc.SendPasswordResetEmail(context.Background(), "alice@example.com", link, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "no-reply@garage.example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"alice@example.com"}, client.input.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), link)
	assert.Contains(t, aws.ToString(client.input.Message.Body.Html.Data), "token=abc&amp;x=&lt;y&gt;")
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "1h0m0s")
}

func TestAWSSESEmailService_SendFailure(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	svc := NewSESEmailServiceWithClient(client, "no-reply@garage.example.com", discardLogger())

	err := svc.SendPasswordResetEmail(context.Background(), "alice@example.com", "https://x", time.Now().Add(time.Hour))
	assert.ErrorContains(t, err, "throttled")
}

func TestLogEmailService_DoesNotLeakAddressOrLinkAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	svc := NewLogEmailService(logger)

	err := svc.SendPasswordResetEmail(context.Background(), "alice@example.com", "https://x/reset?token=secret", time.Now())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "password reset email")
	assert.NotContains(t, out, "alice@example.com")
	assert.NotContains(t, out, "secret")
}
