package distribution

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/Jonboyweb/site-simpler-tables-sub002/internal/monitor"
)

// Distributor fans finished reports and triggered alerts out to the
// configured channels. Either channel may be nil when unconfigured.
type Distributor struct {
	mailer  *Mailer
	webhook *WebhookSender
}

func NewDistributor(mailer *Mailer, webhook *WebhookSender) *Distributor {
	return &Distributor{mailer: mailer, webhook: webhook}
}

// ScheduleSend emails the report payload to the recipients. Satisfies the
// report generators' distribution hook.
func (d *Distributor) ScheduleSend(ctx context.Context, reportID uuid.UUID, recipients []string, payload any) error {
	if d.mailer == nil || len(recipients) == 0 {
		return nil
	}

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report payload: %w", err)
	}

	subject := fmt.Sprintf("The Backroom Leeds report %s", reportID)
	return d.mailer.Send(ctx, recipients, subject, string(body))
}

// SendAlertEmail delivers a triggered alert by mail.
func (d *Distributor) SendAlertEmail(ctx context.Context, recipients []string, alert monitor.AlertNotification) error {
	if d.mailer == nil {
		return fmt.Errorf("no mail relay configured")
	}

	subject := fmt.Sprintf("[%s] job alert: %s", alert.AlertType, alert.JobName)
	body := fmt.Sprintf(
		"Job:        %s\r\nExecution:  %s\r\nAlert:      %s\r\nThreshold:  %g\r\nDuration:   %dms\r\nError:      %s\r\nTriggered:  %s\r\n",
		alert.JobName,
		alert.ExecutionID,
		alert.AlertType,
		alert.Threshold,
		alert.ExecutionTimeMs,
		alert.ErrorMessage,
		alert.TriggeredAt.Format("2006-01-02 15:04:05 MST"),
	)
	return d.mailer.Send(ctx, recipients, subject, body)
}

// SendAlertWebhook posts the alert as a job_alert envelope.
func (d *Distributor) SendAlertWebhook(ctx context.Context, url string, alert monitor.AlertNotification) error {
	if d.webhook == nil {
		return fmt.Errorf("no webhook sender configured")
	}
	return d.webhook.Send(ctx, url, "job_alert", alert)
}

var _ monitor.Notifier = (*Distributor)(nil)
