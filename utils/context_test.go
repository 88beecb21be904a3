package utils_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/utils"
)

func TestContextSleep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dur := 10 * time.Millisecond

	st := time.Now()
	res := utils.ContextSleep(ctx, dur)
	require.NotNil(t, res)
	require.Greater(t, time.Since(st), dur)
}

func TestContextSleepCancel(t *testing.T) {
	t.Parallel()

	dur := 10 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), dur)
	defer cancel()

	st := time.Now()
	res := utils.ContextSleep(ctx, dur*3)
	require.Nil(t, res)
	require.Less(t, time.Since(st), dur*2)
}
