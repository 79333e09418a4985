package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/yachtclub/pkg/config"
	"github.com/fatflowers/yachtclub/pkg/logctx"
	"github.com/fatflowers/yachtclub/pkg/types"
)

// Mailer sends one transactional e-mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// SendGridMailer delivers through the SendGrid v3 API.
type SendGridMailer struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{client: sendgrid.NewSendClient(apiKey), fromEmail: fromEmail, fromName: fromName}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, text, html string) error {
	if to == "" {
		return fmt.Errorf("to address is empty")
	}
	msg := mail.NewSingleEmail(mail.NewEmail(m.fromName, m.fromEmail), subject, mail.NewEmail("", to), text, html)
	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", resp.StatusCode, resp.Body)
	}
	return nil
}

// Membership is what the welcome mail tells a new member.
type Membership struct {
	Email         string
	WalletAddress string
	TokenID       int64
	Tier          types.TierDefinition
}

// Notifier sends member-facing mail. With no mailer configured it only logs.
type Notifier struct {
	mailer Mailer
	log    *zap.SugaredLogger
}

func New(mailer Mailer, log *zap.SugaredLogger) *Notifier {
	return &Notifier{mailer: mailer, log: log}
}

// MembershipConfirmed sends the welcome mail. Failures are logged, not returned:
// the membership exists whether or not the mail arrives.
func (n *Notifier) MembershipConfirmed(ctx context.Context, m Membership) {
	if n == nil {
		return
	}
	lg := logctx.FromCtx(ctx, n.log)
	if n.mailer == nil || strings.TrimSpace(m.Email) == "" {
		lg.Debugw("membership mail skipped", "token_id", m.TokenID)
		return
	}
	subject := fmt.Sprintf("Welcome aboard: your %s membership", m.Tier.DisplayName)
	text := confirmationText(m)
	html := "<pre>" + text + "</pre>"
	if err := n.mailer.Send(ctx, m.Email, subject, text, html); err != nil {
		lg.Warnw("membership mail failed", "token_id", m.TokenID, "err", err)
		return
	}
	lg.Infow("membership mail sent", "token_id", m.TokenID, "tier", m.Tier.DisplayName)
}

func confirmationText(m Membership) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s membership is active.\n\n", m.Tier.DisplayName)
	fmt.Fprintf(&b, "Membership token: #%d\n", m.TokenID)
	fmt.Fprintf(&b, "Wallet: %s\n", m.WalletAddress)
	if len(m.Tier.Benefits) > 0 {
		b.WriteString("\nIncluded:\n")
		for _, benefit := range m.Tier.Benefits {
			fmt.Fprintf(&b, "  - %s\n", benefit)
		}
	}
	b.WriteString("\nVisit the club office to have your NFC member card issued.\n")
	return b.String()
}

func provideNotifier(cfg *config.Config, log *zap.SugaredLogger) *Notifier {
	if cfg.SendGrid.APIKey == "" {
		log.Infow("sendgrid api key not set, membership mail disabled")
		return New(nil, log)
	}
	return New(NewSendGridMailer(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName), log)
}

var Module = fx.Options(
	fx.Provide(provideNotifier),
)
