// Package mailer delivers login codes to users out-of-band. Delivery is
// best-effort from the protocol's point of view: a failed send is logged
// by the caller, never surfaced to the requesting application.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier sends a login code to an email address.
type Notifier interface {
	Notify(ctx context.Context, email, code string) error
}

// MailParams is the data handed to the email template.
type MailParams struct {
	Email    string
	SiteName string
	Code     string
	Window   time.Duration
}

// DefaultTemplate is the default login code email body.
const DefaultTemplate = `Hi {{.Email}},

This is your login code for {{.SiteName}}:

{{.Code}}

The code is valid for {{printf "%.f" .Window.Minutes}} minutes and can be
used once. If you did not request a login code, you can ignore this email.
`

// SendFunc performs the actual delivery. Wiring in a real transport
// (SMTP relay, SES and so on) is the embedding service's choice.
type SendFunc func(to, from, subject, body string) error

// Mailer renders the template and hands the result to its send func.
type Mailer struct {
	send     SendFunc
	tmpl     *template.Template
	from     string
	siteName string
	window   time.Duration
}

// NewMailer creates a Mailer. templateText may be empty to use
// DefaultTemplate.
func NewMailer(send SendFunc, from, siteName, templateText string, window time.Duration) (*Mailer, error) {
	if send == nil {
		return nil, fmt.Errorf("send func must be provided")
	}
	if templateText == "" {
		templateText = DefaultTemplate
	}
	tmpl, err := template.New("login-code").Parse(templateText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mail template: %w", err)
	}
	return &Mailer{send: send, tmpl: tmpl, from: from, siteName: siteName, window: window}, nil
}

func (m *Mailer) Notify(_ context.Context, email, code string) error {
	var body bytes.Buffer
	err := m.tmpl.Execute(&body, MailParams{
		Email:    email,
		SiteName: m.siteName,
		Code:     code,
		Window:   m.window,
	})
	if err != nil {
		return fmt.Errorf("failed to render login email: %w", err)
	}

	subject := fmt.Sprintf("Your %s login code", m.siteName)
	if err := m.send(email, m.from, subject, body.String()); err != nil {
		return fmt.Errorf("failed to send login email: %w", err)
	}
	return nil
}

// SMTPSendFunc returns a SendFunc delivering through the SMTP relay at
// addr (host:port) without authentication. Relays requiring auth need a
// custom SendFunc.
func SMTPSendFunc(addr string) SendFunc {
	return func(to, from, subject, body string) error {
		msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body)
		return smtp.SendMail(addr, nil, from, []string{to}, []byte(msg))
	}
}

// LogNotifier is a dev-mode Notifier that only logs. Never use it in
// production: it writes the code to the service log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, email, code string) error {
	log.Info().Str("email", email).Str("code", code).Msg("login code issued (dev notifier)")
	return nil
}
