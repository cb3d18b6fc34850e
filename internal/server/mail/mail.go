// Package mail delivers password reset links over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/dajohi/goemail"
	"github.com/dmitrijs2005/dealerdesk/internal/logging"
)

// Mailer sends account emails.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, name, token string, expiresAt time.Time) error
}

// Config is the subset of server settings the SMTP client needs.
type Config struct {
	Host        string
	User        string
	Password    string
	SkipVerify  bool
	From        string
	FrontendURL string
}

const resetSubject = "Reset your password"

type resetEmailData struct {
	Name      string
	Link      string
	ExpiresAt string
}

var resetTmpl = template.Must(template.New("reset_password_email").Parse(`Hello {{.Name}},

Click the link below to choose a new password:

{{.Link}}

The link can be used once and expires at {{.ExpiresAt}}.
If you did not ask for a password reset you can ignore this email.
`))

// Client sends mail through an SMTP relay. A client built without
// credentials is disabled and drops every message.
type Client struct {
	send        func(to, subject, body string) error
	frontendURL string
	disabled    bool
	logger      logging.Logger
}

// New returns a Client for cfg. Email is disabled when host, user or
// password is empty.
func New(cfg Config, logger logging.Logger) (*Client, error) {
	c := &Client{frontendURL: cfg.FrontendURL, logger: logger}

	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		c.disabled = true
		return c, nil
	}

	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse mail from: %w", err)
	}

	u := &url.URL{
		Scheme: "smtps",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host,
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.SkipVerify}
	smtp, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	c.send = func(to, subject, body string) error {
		msg := goemail.NewMessage(from.Address, subject, body)
		msg.SetName(from.Name)
		msg.AddTo(to)
		return smtp.Send(msg)
	}
	return c, nil
}

// Enabled reports whether messages are actually sent.
func (c *Client) Enabled() bool {
	return !c.disabled
}

// SendPasswordReset emails a reset link carrying token to the account owner.
func (c *Client) SendPasswordReset(ctx context.Context, to, name, token string, expiresAt time.Time) error {
	if c.disabled {
		c.logger.Warn(ctx, "email disabled, password reset link not delivered")
		return nil
	}

	link, err := ResetLink(c.frontendURL, token)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	err = resetTmpl.Execute(&body, resetEmailData{
		Name:      name,
		Link:      link,
		ExpiresAt: expiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}

	if err := c.send(to, resetSubject, body.String()); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// ResetLink builds the frontend URL a user follows to redeem token.
func ResetLink(frontendURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(frontendURL, "/") + "/reset-password")
	if err != nil {
		return "", fmt.Errorf("parse frontend url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
