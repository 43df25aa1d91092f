package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"referralpay/pkg/config"
)

func TestNewReplacesGlobals(t *testing.T) {
	cfg := &config.Config{AppEnv: "test", AppName: "referralpay"}

	log := New(ConfigParams{Cfg: cfg})
	require.NotNil(t, log)
}

func TestTraceFieldsWithoutSpan(t *testing.T) {
	require.Empty(t, TraceFields(context.Background()))
}

func TestTraceFieldsWithSpan(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := TraceFields(ctx)
	require.Len(t, fields, 2)
	require.Equal(t, "trace_id", fields[0].Key)
	require.Equal(t, traceID.String(), fields[0].String)
	require.Equal(t, spanID.String(), fields[1].String)
}
