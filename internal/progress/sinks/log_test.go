package sinks

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), runEvents(uuid.New())))
	require.Equal(t, 7, logs.Len())
	require.Equal(t, 4, logs.FilterLevelExact(zapcore.DebugLevel).Len())
	require.Equal(t, 3, logs.FilterLevelExact(zapcore.InfoLevel).Len())

	done := logs.FilterField(zap.String("outcome", "completed")).All()
	require.Len(t, done, 1)
	require.NoError(t, sink.Close(context.Background()))
}
