// Package email sends operational mail over SMTP.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"listingportal_backend/platform/config"
	"listingportal_backend/platform/logger"
)

// IngestionReport is the payload of the post-run summary mail.
// Narrative is an optional prose lead-in rendered above the figures.
type IngestionReport struct {
	Narrative     string
	WindowStart   time.Time
	WindowEnd     time.Time
	EventsFetched int
	LeadsCreated  int
	LeadsUpdated  int
	UniqueLeads   int
	UniqueSeekers int
	ErrorsCount   int
	Duration      time.Duration
}

type Sender struct {
	cfg config.EmailConfig
	log *logger.Logger
}

func NewSender(cfg config.EmailConfig, log *logger.Logger) *Sender {
	return &Sender{cfg: cfg, log: log}
}

// SendIngestionReport mails the run summary to the configured recipient.
// Disabled or unconfigured mail is a silent no-op.
func (s *Sender) SendIngestionReport(ctx context.Context, report IngestionReport) error {
	if !s.cfg.GetEmailEnabled() || s.cfg.GetReportRecipient() == "" {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.GetEmailFromName(), s.cfg.GetEmailFromAddress()); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(s.cfg.GetReportRecipient()); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(fmt.Sprintf("Lead ingestion report: %d created, %d updated", report.LeadsCreated, report.LeadsUpdated))
	msg.SetBodyString(mail.TypeTextPlain, renderReport(report))

	dialer, err := mail.NewClient(
		s.cfg.GetSMTPHost(),
		mail.WithPort(s.cfg.GetSMTPPort()),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.GetSMTPUsername()),
		mail.WithPassword(s.cfg.GetSMTPPassword()),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := dialer.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send report: %w", err)
	}

	s.log.Info("ingestion report mailed", "recipient", s.cfg.GetReportRecipient())
	return nil
}

func renderReport(r IngestionReport) string {
	var b strings.Builder
	if r.Narrative != "" {
		b.WriteString(r.Narrative)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Lead ingestion run finished at %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Window:          %s .. %s\n", r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339))
	fmt.Fprintf(&b, "Events fetched:  %d\n", r.EventsFetched)
	fmt.Fprintf(&b, "Leads created:   %d\n", r.LeadsCreated)
	fmt.Fprintf(&b, "Leads updated:   %d\n", r.LeadsUpdated)
	fmt.Fprintf(&b, "Distinct leads:  %d\n", r.UniqueLeads)
	fmt.Fprintf(&b, "Distinct seekers: %d\n", r.UniqueSeekers)
	fmt.Fprintf(&b, "Errors:          %d\n", r.ErrorsCount)
	fmt.Fprintf(&b, "Duration:        %s\n", r.Duration.Round(time.Millisecond))
	return b.String()
}
