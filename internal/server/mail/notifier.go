package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Link paths served by the HTTP API.
const (
	VerifyPath = "/api/v1/users/verify/"
	ResetPath  = "/api/v1/users/reset-password/"
)

type templateData struct {
	Email    string
	Link     string
	ValidFor string
}

// TemplateNotifier renders a token link into an email and hands it to a
// Sender. It implements services.Notifier.
type TemplateNotifier struct {
	sender   Sender
	baseURL  string
	path     string
	subject  string
	template string
	validFor time.Duration
}

// NewVerificationNotifier builds the notifier for email verification links.
func NewVerificationNotifier(sender Sender, baseURL string) *TemplateNotifier {
	return &TemplateNotifier{
		sender:   sender,
		baseURL:  strings.TrimRight(baseURL, "/"),
		path:     VerifyPath,
		subject:  "Email Verification",
		template: "verification.tmpl",
	}
}

// NewResetNotifier builds the notifier for password reset links valid for validFor.
func NewResetNotifier(sender Sender, baseURL string, validFor time.Duration) *TemplateNotifier {
	return &TemplateNotifier{
		sender:   sender,
		baseURL:  strings.TrimRight(baseURL, "/"),
		path:     ResetPath,
		subject:  "Password Reset",
		template: "reset.tmpl",
		validFor: validFor,
	}
}

func (n *TemplateNotifier) Notify(ctx context.Context, email, token string) error {
	data := templateData{
		Email:    email,
		Link:     n.baseURL + n.path + url.PathEscape(token),
		ValidFor: n.validFor.String(),
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, n.template, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", n.template, err)
	}

	return n.sender.Send(ctx, Message{To: email, Subject: n.subject, Body: buf.String()})
}
