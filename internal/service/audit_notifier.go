package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/models"
)

// EmailSender is the part of the SES client the notifier uses.
type EmailSender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// AuditNotifier emails catalog audit events via Amazon SES
type AuditNotifier struct {
	client    EmailSender
	fromEmail string
	toEmail   string
	enabled   bool
	log       *logger.Logger
}

// NewAuditNotifier creates a notifier. Without both addresses it is disabled
// and Notify is a no-op.
func NewAuditNotifier(ctx context.Context, awsRegion, fromEmail, toEmail string, log *logger.Logger) (*AuditNotifier, error) {
	log = log.With("service", "AuditNotifier")
	if fromEmail == "" || toEmail == "" {
		log.Info("Audit email disabled: AUDIT_FROM_EMAIL or AUDIT_TO_EMAIL not configured")
		return &AuditNotifier{log: log}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info("Audit email enabled", "from", fromEmail, "region", awsRegion)
	return NewAuditNotifierWithClient(sesv2.NewFromConfig(cfg), fromEmail, toEmail, log), nil
}

// NewAuditNotifierWithClient wraps an existing sender.
func NewAuditNotifierWithClient(client EmailSender, fromEmail, toEmail string, log *logger.Logger) *AuditNotifier {
	return &AuditNotifier{
		client:    client,
		fromEmail: fromEmail,
		toEmail:   toEmail,
		enabled:   true,
		log:       log,
	}
}

// IsEnabled returns whether audit emails are sent
func (n *AuditNotifier) IsEnabled() bool {
	return n.enabled
}

// Notify emails ev to the audit address.
func (n *AuditNotifier) Notify(ctx context.Context, ev *models.CatalogAuditEvent) error {
	if !n.enabled {
		n.log.Debug("Skipping audit email (disabled)", "action", ev.Action, "key", ev.Key)
		return nil
	}

	subject := fmt.Sprintf("[dailyalchemy] catalog %s: %s", ev.Action, ev.Key)
	var body strings.Builder
	fmt.Fprintf(&body, "Action: %s\n", ev.Action)
	fmt.Fprintf(&body, "Key: %s\n", ev.Key)
	fmt.Fprintf(&body, "Actor: %s\n", ev.Actor)
	fmt.Fprintf(&body, "Time: %s\n", ev.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	if ev.Detail != "" {
		fmt.Fprintf(&body, "\nDetail:\n%s\n", ev.Detail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{n.toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(body.String()),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	out, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send audit email: %w", err)
	}
	n.log.Info("Audit email sent", "key", ev.Key, "message_id", aws.ToString(out.MessageId))
	return nil
}
