package gmail

import (
	"fmt"
	"mime"
	"net/mail"
	"strings"
)

// Body types accepted in Message.BodyType.
const (
	BodyTypeText = "text"
	BodyTypeHTML = "html"
)

// Message is an outgoing email.
type Message struct {
	To       []string `json:"to"`
	Cc       []string `json:"cc,omitempty"`
	Bcc      []string `json:"bcc,omitempty"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	BodyType string   `json:"body_type,omitempty"`
}

// IsHTML reports whether the body is sent as text/html.
func (m *Message) IsHTML() bool {
	return strings.EqualFold(m.BodyType, BodyTypeHTML)
}

// Recipients returns To, Cc and Bcc in that order.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return append(out, m.Bcc...)
}

// Validate checks the message before any provider call.
func (m *Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if m.Body == "" {
		return fmt.Errorf("body is required")
	}
	switch strings.ToLower(m.BodyType) {
	case "", BodyTypeText, BodyTypeHTML:
	default:
		return fmt.Errorf("body_type must be %q or %q, got %q", BodyTypeText, BodyTypeHTML, m.BodyType)
	}
	if strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("subject must not contain line breaks")
	}
	for _, addr := range m.Recipients() {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", addr, err)
		}
	}
	return nil
}

// Build renders the message in RFC 2822 format. from may be empty, in which
// case Gmail fills in the authenticated address.
func (m *Message) Build(from string) []byte {
	var b strings.Builder

	if from != "" {
		writeHeader(&b, "From", from)
	}
	writeHeader(&b, "To", strings.Join(m.To, ", "))
	if len(m.Cc) > 0 {
		writeHeader(&b, "Cc", strings.Join(m.Cc, ", "))
	}
	if len(m.Bcc) > 0 {
		writeHeader(&b, "Bcc", strings.Join(m.Bcc, ", "))
	}
	writeHeader(&b, "Subject", encodeRFC2047(m.Subject))

	if m.IsHTML() {
		writeHeader(&b, "Content-Type", `text/html; charset="UTF-8"`)
	} else {
		writeHeader(&b, "Content-Type", `text/plain; charset="UTF-8"`)
	}
	writeHeader(&b, "MIME-Version", "1.0")
	b.WriteString("\r\n")
	b.WriteString(m.Body)

	return []byte(b.String())
}

func writeHeader(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// encodeRFC2047 B-encodes header values that contain non-ASCII characters.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}

// Preview returns at most n runes of the body, for logs and analytics.
func (m *Message) Preview(n int) string {
	runes := []rune(m.Body)
	if len(runes) <= n {
		return m.Body
	}
	return string(runes[:n])
}
