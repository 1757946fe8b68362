package telemetry

import (
	"context"
	"testing"

	"session-service/config"
	"session-service/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestInitTracerDisabledIsNoop(t *testing.T) {
	shutdown := InitTracer(context.Background(), config.TelemetryConfig{Enabled: false}, logger.Nop())
	assert.NoError(t, shutdown(context.Background()))
}
