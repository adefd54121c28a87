package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAuditLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestAuditLogger_HashesPIIByDefault(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditConfig{Enabled: true})

	al.Record(context.Background(), AuditEvent{
		Type:      EventEmailSent,
		UserID:    "u1",
		Email:     "u1@gmail.com",
		MessageID: "m1",
		Attempts:  1,
	})

	entry := decodeAuditLine(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "email_sent", entry["event"])
	assert.Equal(t, "audit", entry["log_type"])
	assert.Equal(t, "gmail.com", entry["user_domain"])
	assert.NotContains(t, buf.String(), `"u1"`)
	assert.NotContains(t, buf.String(), "u1@gmail.com")
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditConfig{Enabled: true, IncludePII: true})

	al.Record(context.Background(), AuditEvent{
		Type:      EventRefreshFailed,
		UserID:    "u1",
		Email:     "u1@gmail.com",
		ErrorKind: "refresh_failed",
	})

	entry := decodeAuditLine(t, &buf)
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, "u1@gmail.com", entry["email"])
	assert.Equal(t, "refresh_failed", entry["error_kind"])
}

func TestAuditLogger_DisabledAndNil(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)), AuditConfig{Enabled: false})
	al.Record(context.Background(), AuditEvent{Type: EventAccountConnected, UserID: "u1"})
	assert.Empty(t, buf.String())

	var nilLogger *AuditLogger
	nilLogger.Record(context.Background(), AuditEvent{Type: EventAccountConnected})
}
