package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/mpslytherin/accounts/internal/models"
)

// LockoutNotifier tells an account owner that their account was locked
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, account *models.Account, until time.Time) error
}

// SESClient is the subset of the SES API used for notifications
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends lockout emails via AWS SES
type SESNotifier struct {
	client      SESClient
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS credential chain for the given region.
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func NewSESNotifierWithClient(client SESClient, fromAddress string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

func (n *SESNotifier) NotifyLockout(ctx context.Context, account *models.Account, until time.Time) error {
	if account.Email == "" {
		return nil
	}

	subject := "Your account has been temporarily locked"
	untilText := until.UTC().Format("2006-01-02 15:04 MST")

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<h2>Account temporarily locked</h2>
<p>Hello %s,</p>
<p>We noticed several failed sign-in attempts on your account. To protect it, sign-in has been disabled until <strong>%s</strong>.</p>
<p>If this was you, wait until then and try again. If it wasn't, consider changing your password once you regain access.</p>
</body>
</html>`, account.Username, untilText)

	textBody := fmt.Sprintf(`Hello %s,

We noticed several failed sign-in attempts on your account. To protect it, sign-in has been disabled until %s.

If this was you, wait until then and try again. If it wasn't, consider changing your password once you regain access.
`, account.Username, untilText)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{account.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(htmlBody),
					Charset: aws.String("UTF-8"),
				},
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send lockout email: %w", err)
	}

	n.logger.Info("lockout notification sent", slog.Int64("account_id", account.ID))
	return nil
}

// NoopNotifier discards notifications
type NoopNotifier struct{}

func (NoopNotifier) NotifyLockout(context.Context, *models.Account, time.Time) error {
	return nil
}
