package console

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/transport"
)

// TestPublisher_Publish writes the body and properties to the context logger.
func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := logger.ToContext(context.Background(), logger.NewWithWriter(&buf, zapcore.InfoLevel))

	err := NewPublisher().Publish(ctx, &transport.Message{
		ID:         "m-1",
		Body:       []byte(`{"temperature":"60.00","humidity":"79.00"}`),
		Properties: map[string]string{"sensorID": "S1"},
	})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "m-1")
	require.Contains(t, out, "60.00")
	require.Contains(t, out, "sensorID")
}
