package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"fortune-queue/internal/config"
	"fortune-queue/internal/logger"
	"fortune-queue/internal/models"
)

// EmailNotifier sends completed-reading emails over SMTP.
type EmailNotifier struct {
	Config config.EmailConfig
	Logger *logger.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, log *logger.Logger) *EmailNotifier {
	return &EmailNotifier{Config: cfg, Logger: log}
}

// SendReadingCompleted delivers the reading to the order's customer email.
func (n *EmailNotifier) SendReadingCompleted(ctx context.Context, order models.Order) error {
	subject := fmt.Sprintf("Your fortune reading is ready (order %s)", order.OrderID)
	body := buildReadingBody(order)

	msg := strings.Join([]string{
		"From: " + n.Config.FromAddress,
		"To: " + order.CustomerEmail,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")

	addr := n.Config.SMTPHost + ":" + n.Config.SMTPPort
	auth := smtp.PlainAuth("", n.Config.SMTPUsername, n.Config.SMTPPassword, n.Config.SMTPHost)

	if err := smtp.SendMail(addr, auth, n.Config.FromAddress, []string{order.CustomerEmail}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send reading email to %s: %w", order.CustomerEmail, err)
	}

	n.Logger.LogEmail("SEND", order.CustomerEmail, fmt.Sprintf("reading for order %s delivered", order.OrderID))
	return nil
}

func buildReadingBody(order models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", order.CustomerName)
	b.WriteString("Your coffee-cup reading is complete. Here is what we saw:\n\n")
	b.WriteString(order.ReadingContent)
	if order.ReadingNotes != "" {
		b.WriteString("\n\nNotes from your reader:\n")
		b.WriteString(order.ReadingNotes)
	}
	fmt.Fprintf(&b, "\n\nOrder reference: %s\n", order.OrderID)
	return b.String()
}
