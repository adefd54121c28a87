package instrumentation

import (
	"context"
	"testing"
	"time"
)

func TestMetrics_RecordAll(t *testing.T) {
	ctx := context.Background()
	metrics := newTestProvider(t).Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/users/{user_id}/messages", 200, 100*time.Millisecond)
	metrics.RecordGoogleAPIOperation(ctx, ServiceGmail, "send", StatusSuccess, 200*time.Millisecond)
	metrics.RecordOAuthAuthorization(ctx, OAuthResultSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, "refresh_failed")
	metrics.RecordDelivery(ctx, StatusSuccess, "u1@gmail.com", 2)
	metrics.RecordStoreOperation(ctx, "memory", "get", StatusSuccess, time.Millisecond)
}

func TestMetrics_ZeroValueIsNoop(t *testing.T) {
	ctx := context.Background()
	m := &Metrics{}

	// Should not panic
	m.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceGmail, "send", StatusError, time.Millisecond)
	m.RecordOAuthAuthorization(ctx, OAuthResultFailure)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	m.RecordDelivery(ctx, StatusError, "", 1)
	m.RecordStoreOperation(ctx, "gcp", "put", "store_unavailable", time.Millisecond)
}
