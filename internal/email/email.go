package email

import (
	"fmt"
	"os"
	"strings"

	"tangohub-backend/internal/models"

	"github.com/labstack/echo/v4"
	resend "github.com/resend/resend-go/v2"
)

// EmailClient is an interface for sending emails
type EmailClient interface {
	SendAsync(toEmail, subject, htmlBody string)
	SendWelcomeEmail(user *models.User)
	SendEndorsementReceivedEmail(endorsee *models.User, endorserName string, role models.TangoRole)
}

// ResendEmailClient implements EmailClient using the Resend service
type ResendEmailClient struct {
	client        *resend.Client
	defaultSender string
	logger        echo.Logger
}

// NewResendEmailClient creates a new ResendEmailClient
func NewResendEmailClient(client *resend.Client, defaultSender string, logger echo.Logger) *ResendEmailClient {
	return &ResendEmailClient{
		client:        client,
		defaultSender: defaultSender,
		logger:        logger,
	}
}

// SendAsync sends an email asynchronously
func (c *ResendEmailClient) SendAsync(toEmail, subject, htmlBody string) {
	if c == nil || c.client == nil {
		fmt.Println("Resend client not initialized, skipping email.")
		return
	}

	if c.defaultSender == "" {
		c.logger.Errorf("Resend default sender not configured, skipping email.")
		return
	}

	go func() {
		params := &resend.SendEmailRequest{
			From:    c.defaultSender,
			To:      []string{toEmail},
			Subject: subject,
			Html:    htmlBody,
		}

		_, err := c.client.Emails.Send(params)
		if err != nil {
			c.logger.Errorf("Failed to send email to %s (Subject: %s): %v\n", toEmail, subject, err)
		} else {
			c.logger.Infof("Email sent successfully to %s (Subject: %s)\n", toEmail, subject)
		}
	}()
}

// SendWelcomeEmail sends a welcome email to a new user
func (c *ResendEmailClient) SendWelcomeEmail(user *models.User) {
	if user == nil {
		c.logger.Error("Cannot send welcome email to nil user")
		return
	}

	// Read the template file
	templateBytes, err := os.ReadFile("web/emails/tangohub-welcome.html")
	if err != nil {
		c.logger.Errorf("Failed to read welcome email template: %v", err)
		return
	}

	htmlBody := strings.ReplaceAll(string(templateBytes), "{first_name}", user.FirstName)
	subject := "Welcome to TangoHub " + user.FirstName

	c.SendAsync(user.Email, subject, htmlBody)
}

// SendEndorsementReceivedEmail tells a user someone has endorsed them
func (c *ResendEmailClient) SendEndorsementReceivedEmail(endorsee *models.User, endorserName string, role models.TangoRole) {
	if endorsee == nil {
		c.logger.Error("Cannot send endorsement email to nil user")
		return
	}

	// Read the template file
	templateBytes, err := os.ReadFile("web/emails/tangohub-endorsement.html")
	if err != nil {
		c.logger.Errorf("Failed to read endorsement email template: %v", err)
		return
	}

	replacer := strings.NewReplacer(
		"{first_name}", endorsee.FirstName,
		"{endorser_name}", endorserName,
		"{tango_role}", string(role),
	)
	htmlBody := replacer.Replace(string(templateBytes))

	subject := fmt.Sprintf("%s endorsed you as a %s on TangoHub", endorserName, role)

	c.SendAsync(endorsee.Email, subject, htmlBody)
}
