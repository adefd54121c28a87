package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span", attribute.String("k", "v"))
	defer span.End()

	if ctx == nil || span == nil {
		t.Fatal("expected ctx and span")
	}

	SetSpanError(span, errors.New("boom"))
	SetSpanError(span, nil)
	SetSpanSuccess(span)
}

func TestStartGoogleAPISpan(t *testing.T) {
	_, span := StartGoogleAPISpan(context.Background(), ServiceGmail, "send", UserAttr("u1"))
	defer span.End()
}

func TestUserAttr(t *testing.T) {
	attr := UserAttr("u1")
	if string(attr.Key) != SpanAttrUserHash {
		t.Errorf("key = %q", attr.Key)
	}
	if attr.Value.AsString() == "u1" {
		t.Error("user id must be hashed")
	}
}

func TestTraceIDs_NoSpan(t *testing.T) {
	if GetTraceID(context.Background()) != "" {
		t.Error("expected empty trace id without span")
	}
	if GetSpanID(context.Background()) != "" {
		t.Error("expected empty span id without span")
	}
}
