package gmail

import (
	"mime"
	"strings"
	"testing"
)

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name        string
		msg         Message
		errContains string
	}{
		{
			name: "valid text",
			msg:  Message{To: []string{"a@example.com"}, Subject: "Hi", Body: "Hello"},
		},
		{
			name: "valid html with cc and bcc",
			msg: Message{
				To: []string{"a@example.com"}, Cc: []string{"b@example.com"}, Bcc: []string{"Carol <c@example.com>"},
				Subject: "Hi", Body: "<p>Hello</p>", BodyType: "html",
			},
		},
		{
			name:        "no recipients",
			msg:         Message{Subject: "Hi", Body: "Hello"},
			errContains: "at least one recipient is required",
		},
		{
			name:        "missing subject",
			msg:         Message{To: []string{"a@example.com"}, Subject: "  ", Body: "Hello"},
			errContains: "subject is required",
		},
		{
			name:        "missing body",
			msg:         Message{To: []string{"a@example.com"}, Subject: "Hi"},
			errContains: "body is required",
		},
		{
			name:        "unknown body type",
			msg:         Message{To: []string{"a@example.com"}, Subject: "Hi", Body: "x", BodyType: "markdown"},
			errContains: "body_type must be",
		},
		{
			name:        "header injection in subject",
			msg:         Message{To: []string{"a@example.com"}, Subject: "Hi\r\nBcc: evil@example.com", Body: "x"},
			errContains: "line breaks",
		},
		{
			name:        "malformed recipient",
			msg:         Message{To: []string{"not-an-address"}, Subject: "Hi", Body: "x"},
			errContains: "invalid recipient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestMessage_Build(t *testing.T) {
	msg := Message{
		To:       []string{"a@example.com", "b@example.com"},
		Cc:       []string{"c@example.com"},
		Subject:  "Grüße",
		Body:     "<b>hi</b>",
		BodyType: "html",
	}

	raw := string(msg.Build("me@example.com"))

	for _, want := range []string{
		"From: me@example.com\r\n",
		"To: a@example.com, b@example.com\r\n",
		"Cc: c@example.com\r\n",
		"Content-Type: text/html; charset=\"UTF-8\"\r\n",
		"MIME-Version: 1.0\r\n\r\n<b>hi</b>",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("Build() missing %q in:\n%s", want, raw)
		}
	}
	if strings.Contains(raw, "Bcc:") {
		t.Error("Build() should omit empty Bcc header")
	}

	var subject string
	for _, line := range strings.Split(raw, "\r\n") {
		if strings.HasPrefix(line, "Subject: ") {
			subject = strings.TrimPrefix(line, "Subject: ")
		}
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(subject)
	if err != nil {
		t.Fatalf("failed to decode subject %q: %v", subject, err)
	}
	if decoded != "Grüße" {
		t.Errorf("decoded subject = %q, want %q", decoded, "Grüße")
	}
}

func TestMessage_BuildPlainTextWithoutFrom(t *testing.T) {
	raw := string((&Message{To: []string{"a@example.com"}, Subject: "Hi", Body: "plain"}).Build(""))

	if strings.Contains(raw, "From:") {
		t.Error("Build(\"\") should not write a From header")
	}
	if !strings.Contains(raw, "Content-Type: text/plain; charset=\"UTF-8\"") {
		t.Errorf("expected text/plain content type:\n%s", raw)
	}
	if !strings.Contains(raw, "Subject: Hi\r\n") {
		t.Errorf("ASCII subject should not be encoded:\n%s", raw)
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := Message{Body: strings.Repeat("ä", 150)}
	if got := []rune(msg.Preview(100)); len(got) != 100 {
		t.Errorf("Preview(100) returned %d runes", len(got))
	}
	short := Message{Body: "short"}
	if short.Preview(100) != "short" {
		t.Error("Preview should return short bodies unchanged")
	}
}

func TestMessage_Recipients(t *testing.T) {
	msg := Message{To: []string{"a"}, Cc: []string{"b"}, Bcc: []string{"c"}}
	if got := strings.Join(msg.Recipients(), ","); got != "a,b,c" {
		t.Errorf("Recipients() = %q", got)
	}
}
