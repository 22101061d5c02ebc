package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// TestPurpose: Validates structured output with tenant attributes and trace correlation.
// Scope: Unit Test
// Expected: JSON records carry the component, tenant fields and the span ids from context.
// Test Case ID: LOG-01
func TestNew_JSONWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", ServiceName: "tenancy", Output: &buf})

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.InfoContext(ctx, "tenant provisioned", TenantID(42), Slug("acme"), Step("seed"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "tenant provisioned", rec["msg"])
	assert.Equal(t, "tenancy", rec["component"])
	assert.EqualValues(t, 42, rec["tenant_id"])
	assert.Equal(t, "acme", rec["slug"])
	assert.Equal(t, sc.TraceID().String(), rec["trace_id"])
	assert.Equal(t, sc.SpanID().String(), rec["span_id"])
}

// TestPurpose: Validates level parsing and filtering.
// Scope: Unit Test
// Expected: Unknown names fall back to info and records below the level are dropped.
// Test Case ID: LOG-02
func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))

	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "text", Output: &buf})
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
