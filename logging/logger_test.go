package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoggerChainingKeepsFields(t *testing.T) {
	base := New()

	chained := base.
		WithField("service", "queue").
		WithFields(logrus.Fields{"chain_id": "11155111"}).
		WithError(errors.New("boom"))

	entry := chained.(*logger).Entry
	require.Equal(t, "queue", entry.Data["service"])
	require.Equal(t, "11155111", entry.Data["chain_id"])
	require.EqualError(t, entry.Data[logrus.ErrorKey].(error), "boom")

	// The base logger keeps its own field set.
	require.Empty(t, base.(*logger).Entry.Data)
}

func TestLoggerContextRoundTrip(t *testing.T) {
	l := New().WithField("request_id", "abc123")

	ctx := WithLogger(context.Background(), l)
	require.Same(t, l, LoggerFromContext(ctx))

	// A bare context yields a usable fallback logger.
	require.NotNil(t, LoggerFromContext(context.Background()))
}
