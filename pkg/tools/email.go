package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

const emailFooter = "\n\n`Note: This email was sent by an AI Agent. Thank You`"

// SendMailFunc matches smtp.SendMail, which upgrades to STARTTLS when offered.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SendEmail delivers plain-text mail through an authenticated SMTP relay.
type SendEmail struct {
	Host     string
	Port     int
	Sender   string
	Password string
	Send     SendMailFunc
}

func NewSendEmail(sender, password string) *SendEmail {
	return &SendEmail{Host: "smtp.gmail.com", Port: 587, Sender: sender, Password: password, Send: smtp.SendMail}
}

func (s *SendEmail) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "send_email",
		Description: "Send an email to a specified email address.",
		InputSchema: objectSchema([]string{"to_email", "message"}, map[string]any{
			"to_email": stringProp("recipient's email address"),
			"message":  stringProp("email's message content"),
			"subject":  stringProp("email's subject"),
		}),
	}
}

// Invoke reports configuration and input problems as content so the model can
// relay them; only transport failures are returned as errors.
func (s *SendEmail) Invoke(_ context.Context, req Request) (Response, error) {
	if s.Sender == "" || s.Password == "" {
		return Response{Content: "Error: Email credentials not found in environment variables"}, nil
	}
	to := strings.ToLower(strings.TrimSpace(stringArg(req.Arguments, "to_email", "to")))
	body := stringArg(req.Arguments, "message", "body")
	if to == "" || body == "" {
		return Response{Content: "Error: Recipient email and message are required"}, nil
	}
	subject := stringArg(req.Arguments, "subject")
	if subject == "" {
		subject = "No Subject"
	}

	msg := buildEmail(s.Sender, to, subject, body+emailFooter)
	addr := net.JoinHostPort(s.Host, fmt.Sprint(s.Port))
	auth := smtp.PlainAuth("", s.Sender, s.Password, s.Host)
	send := s.Send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(addr, auth, s.Sender, []string{to}, msg); err != nil {
		return Response{}, fmt.Errorf("send email: %w", err)
	}
	return Response{Content: "Email sent successfully to " + to}, nil
}

func buildEmail(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// DirectMessenger sends a Discord DM and returns the recipient's username.
type DirectMessenger interface {
	SendDirect(ctx context.Context, userID, content string) (string, error)
}

// SendDiscordMessage lets the model DM a Discord user.
type SendDiscordMessage struct {
	Messenger DirectMessenger
}

func (s *SendDiscordMessage) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "send_discord_message",
		Description: "Sends a message to a Discord user via DM. The user id may be a raw id or a mention such as <@123>.",
		InputSchema: objectSchema([]string{"userId", "message"}, map[string]any{
			"userId":  stringProp("the Discord user ID or mention"),
			"message": stringProp("the message to send"),
		}),
	}
}

func (s *SendDiscordMessage) Invoke(ctx context.Context, req Request) (Response, error) {
	if s.Messenger == nil {
		return Response{}, errors.New("discord session is not available")
	}
	raw := stringArg(req.Arguments, "userId", "user_id")
	id := digitsOnly(raw)
	if id == "" {
		return Response{Content: fmt.Sprintf("Invalid user ID format: %s (no valid digits found)", raw)}, nil
	}
	message := stringArg(req.Arguments, "message")
	if message == "" {
		return Response{}, errors.New("missing 'message' argument")
	}
	name, err := s.Messenger.SendDirect(ctx, id, message)
	if err != nil {
		return Response{}, fmt.Errorf("send discord message to %s: %w", id, err)
	}
	return Response{Content: fmt.Sprintf("Message sent successfully to user %s (%s)\nMESSAGE: %s", name, id, message)}, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
