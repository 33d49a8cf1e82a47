// Package email notifies an operator by email when a DriftAlert fires,
// via resend-go — a teacher dependency carried in but never exercised by
// the original repo; this is its first concrete use.
package email

import (
	"context"
	"fmt"

	"github.com/kazimov/jobtrail/domain"
	"github.com/resend/resend-go/v2"
)

type Notifier struct {
	client *resend.Client
	from   string
	to     string
}

func New(apiKey, from, to string) *Notifier {
	return &Notifier{client: resend.NewClient(apiKey), from: from, to: to}
}

// NotifyAlert sends a plain-text summary of a DriftAlert. Errors are
// never fatal to the caller's job — the Rewrite Trigger discards them.
func (n *Notifier) NotifyAlert(ctx context.Context, alert *domain.DriftAlert) error {
	if n.from == "" || n.to == "" {
		return nil
	}
	subject := fmt.Sprintf("[jobtrail] %s alert for %s", alert.Kind, alert.Archetype)
	body := fmt.Sprintf("archetype=%s kind=%s metric=%.4f threshold=%.4f", alert.Archetype, alert.Kind, alert.MetricValue, alert.Threshold)
	_, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: subject,
		Text:    body,
	})
	return err
}
