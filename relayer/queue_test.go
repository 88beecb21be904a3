package relayer_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/config"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/relayer"
)

func newTestQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		MaxRetries:         3,
		MaxConcurrent:      3,
		ProcessedCacheSize: 1000,
	}
}

func newApprovalEvent(loanID string, logIndex uint) *entity.NormalizedEvent {
	return &entity.NormalizedEvent{
		SourceChain:     "11155111",
		TransactionHash: common.HexToHash(fmt.Sprintf("0x%064x", logIndex+1)),
		BlockNumber:     100,
		LogIndex:        logIndex,
		Payload: &entity.ApprovalPayload{
			LoanID:               loanID,
			Lender:               common.HexToAddress("0x01"),
			AskingPrice:          big.NewInt(500000),
			ModifiedInterestRate: big.NewInt(550),
		},
	}
}

func TestQueueDeduplicatesQueuedEvents(t *testing.T) {
	t.Parallel()

	q := relayer.NewQueue(logging.New(), newTestQueueConfig(), func(ctx context.Context, event *entity.NormalizedEvent) error {
		return nil
	})

	event := newApprovalEvent("GM912D0006", 1)
	require.True(t, q.Add(event))
	require.False(t, q.Add(event))
	require.Equal(t, 1, q.GetStatus().QueueSize)
}

func TestQueueDeduplicatesProcessedEvents(t *testing.T) {
	t.Parallel()

	var processed int
	q := relayer.NewQueue(logging.New(), newTestQueueConfig(), func(ctx context.Context, event *entity.NormalizedEvent) error {
		processed++
		return nil
	})

	event := newApprovalEvent("GM912D0006", 1)
	require.True(t, q.Add(event))
	q.Tick(context.Background())
	require.Equal(t, 1, processed)

	require.False(t, q.Add(event))
	q.Tick(context.Background())
	require.Equal(t, 1, processed)
	require.Equal(t, uint(1), q.GetStatus().TotalProcessed)
}

func TestQueueDistinctLogIndexesAreDistinctEvents(t *testing.T) {
	t.Parallel()

	q := relayer.NewQueue(logging.New(), newTestQueueConfig(), func(ctx context.Context, event *entity.NormalizedEvent) error {
		return nil
	})

	require.True(t, q.Add(newApprovalEvent("GM912D0006", 1)))
	require.True(t, q.Add(newApprovalEvent("GM912D0006", 2)))
	require.Equal(t, 2, q.GetStatus().QueueSize)
}

func TestQueueRetriesExactlyMaxRetriesTimes(t *testing.T) {
	t.Parallel()

	var attempts int
	q := relayer.NewQueue(logging.New(), newTestQueueConfig(), func(ctx context.Context, event *entity.NormalizedEvent) error {
		attempts++
		return errors.New("tx reverted")
	})

	event := newApprovalEvent("GM912D0006", 1)
	require.True(t, q.Add(event))
	for i := 0; i < 10; i++ {
		q.Tick(context.Background())
	}
	require.Equal(t, 3, attempts)
	require.Equal(t, 0, q.GetStatus().QueueSize)
	require.Equal(t, uint(0), q.GetStatus().TotalProcessed)

	// A dropped event is not remembered as processed, a fresh delivery of the
	// same log may try again.
	require.True(t, q.Add(event))
}

func TestQueueRetryGoesToTheBack(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	failedOnce := false
	q := relayer.NewQueue(logging.New(), &config.QueueConfig{
		MaxRetries:         3,
		MaxConcurrent:      1,
		ProcessedCacheSize: 1000,
	}, func(ctx context.Context, event *entity.NormalizedEvent) error {
		payload := event.Payload.(*entity.ApprovalPayload)
		mu.Lock()
		order = append(order, payload.LoanID)
		mu.Unlock()
		if payload.LoanID == "LOAN-A" && !failedOnce {
			failedOnce = true
			return errors.New("nonce too low")
		}
		return nil
	})

	require.True(t, q.Add(newApprovalEvent("LOAN-A", 1)))
	require.True(t, q.Add(newApprovalEvent("LOAN-B", 2)))
	for i := 0; i < 5; i++ {
		q.Tick(context.Background())
	}
	require.Equal(t, []string{"LOAN-A", "LOAN-B", "LOAN-A"}, order)
	require.Equal(t, uint(2), q.GetStatus().TotalProcessed)
}

func TestQueueProcessedCacheEviction(t *testing.T) {
	t.Parallel()

	q := relayer.NewQueue(logging.New(), &config.QueueConfig{
		MaxRetries:         3,
		MaxConcurrent:      10,
		ProcessedCacheSize: 2,
	}, func(ctx context.Context, event *entity.NormalizedEvent) error {
		return nil
	})

	first := newApprovalEvent("LOAN-A", 1)
	require.True(t, q.Add(first))
	q.Tick(context.Background())
	require.False(t, q.Add(first))

	require.True(t, q.Add(newApprovalEvent("LOAN-B", 2)))
	require.True(t, q.Add(newApprovalEvent("LOAN-C", 3)))
	q.Tick(context.Background())

	// The oldest key was evicted from the bounded processed set.
	require.True(t, q.Add(first))
}
