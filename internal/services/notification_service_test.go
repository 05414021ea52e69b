package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/mpslytherin/accounts/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	sent          []*ses.SendEmailInput
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.sent = append(m.sent, params)
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{}, nil
}

func TestSESNotifier_NotifyLockout(t *testing.T) {
	client := &MockSESClient{}
	n := NewSESNotifierWithClient(client, "no-reply@example.com", discardLogger())
	until := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)

	err := n.NotifyLockout(context.Background(), &models.Account{ID: 3, Username: "alice", Email: "alice@x.com"}, until)

	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	input := client.sent[0]
	assert.Equal(t, "no-reply@example.com", *input.Source)
	assert.Equal(t, []string{"alice@x.com"}, input.Destination.ToAddresses)
	assert.Contains(t, *input.Message.Body.Text.Data, "2024-03-01 10:15 UTC")
	assert.Contains(t, *input.Message.Body.Html.Data, "alice")
}

func TestSESNotifier_NotifyLockout_Error(t *testing.T) {
	client := &MockSESClient{
		SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	n := NewSESNotifierWithClient(client, "no-reply@example.com", discardLogger())

	err := n.NotifyLockout(context.Background(), &models.Account{ID: 3, Email: "alice@x.com"}, time.Now())
	assert.ErrorContains(t, err, "throttled")
}

func TestSESNotifier_SkipsMissingEmail(t *testing.T) {
	client := &MockSESClient{}
	n := NewSESNotifierWithClient(client, "no-reply@example.com", discardLogger())

	require.NoError(t, n.NotifyLockout(context.Background(), &models.Account{ID: 3}, time.Now()))
	assert.Empty(t, client.sent)
}
