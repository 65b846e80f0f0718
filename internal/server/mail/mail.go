// Package mail renders account emails and delivers them via SMTP, a Kafka
// outbox topic or the log, optionally through an asynchronous dispatcher.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is one outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryRecorder counts delivery outcomes. *metrics.Metrics satisfies it.
type DeliveryRecorder interface {
	RecordMailDelivery(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMailDelivery(string) {}

// format renders msg as a plain-text RFC 5322 message.
func format(from string, msg Message, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// headerSafe rejects values that would inject extra headers.
func headerSafe(values ...string) error {
	for _, v := range values {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("mail header contains a line break: %q", v)
		}
	}
	return nil
}
