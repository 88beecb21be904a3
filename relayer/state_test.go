package relayer_test

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/relayer"
)

func TestBridgeStateLoanMappingFirstWriterWins(t *testing.T) {
	t.Parallel()

	state := relayer.NewBridgeState()

	_, ok := state.GetNFTForLoan("GM912D0006")
	require.False(t, ok)

	require.True(t, state.MapLoanToNFT("GM912D0006", big.NewInt(7)))
	require.False(t, state.MapLoanToNFT("GM912D0006", big.NewInt(8)))

	tokenID, ok := state.GetNFTForLoan("GM912D0006")
	require.True(t, ok)
	require.Equal(t, int64(7), tokenID.Int64())
}

func TestBridgeStateLoanMappingCopiesTokenID(t *testing.T) {
	t.Parallel()

	state := relayer.NewBridgeState()
	original := big.NewInt(7)
	require.True(t, state.MapLoanToNFT("GM912D0006", original))
	original.SetInt64(42)

	tokenID, ok := state.GetNFTForLoan("GM912D0006")
	require.True(t, ok)
	require.Equal(t, int64(7), tokenID.Int64())

	tokenID.SetInt64(99)
	tokenID, _ = state.GetNFTForLoan("GM912D0006")
	require.Equal(t, int64(7), tokenID.Int64())
}

func TestBridgeStateNoncesAreMonotonicPerLoan(t *testing.T) {
	t.Parallel()

	state := relayer.NewBridgeState()

	require.Equal(t, uint64(0), state.GetNonce("LOAN-A"))
	require.Equal(t, uint64(1), state.GetNonce("LOAN-A"))
	require.Equal(t, uint64(2), state.GetNonce("LOAN-A"))

	// Sequences for different loans are independent.
	require.Equal(t, uint64(0), state.GetNonce("LOAN-B"))
	require.Equal(t, uint64(3), state.GetNonce("LOAN-A"))
}

func TestBridgeStateNoncesUnderConcurrency(t *testing.T) {
	t.Parallel()

	state := relayer.NewBridgeState()

	const workers = 10
	const perWorker = 100
	seen := make([]map[uint64]bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		seen[i] = make(map[uint64]bool, perWorker)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				seen[i][state.GetNonce("LOAN-A")] = true
			}
		}(i)
	}
	wg.Wait()

	all := make(map[uint64]bool, workers*perWorker)
	for _, m := range seen {
		for nonce := range m {
			require.False(t, all[nonce])
			all[nonce] = true
		}
	}
	require.Len(t, all, workers*perWorker)
}

func TestBridgeStateSyncStateAndMetrics(t *testing.T) {
	t.Parallel()

	state := relayer.NewBridgeState()

	state.UpdateSyncState("11155111", 100)
	state.UpdateSyncState("80001", 200)
	state.UpdateSyncState("11155111", 101)
	require.Equal(t, map[string]uint64{"11155111": 101, "80001": 200}, state.SyncState())

	state.IncrementMetric(relayer.MetricEventsProcessed)
	state.IncrementMetric(relayer.MetricEventsProcessed)
	state.IncrementMetric(relayer.MetricNFTsMinted)
	require.Equal(t, map[string]uint64{
		relayer.MetricEventsProcessed: 2,
		relayer.MetricNFTsMinted:      1,
	}, state.Metrics())
}

func TestBridgeStatePendingTxBookkeeping(t *testing.T) {
	t.Parallel()

	state := relayer.NewBridgeState()

	hash := common.HexToHash("0x01")
	state.TrackPendingTx("80001", "GM912D0006", hash)
	require.Equal(t, 1, state.PendingTxCount())

	// Fresh entries survive a sweep.
	require.Equal(t, 0, state.CleanupPendingTxs())
	require.Equal(t, 1, state.PendingTxCount())

	state.ResolvePendingTx(hash)
	require.Equal(t, 0, state.PendingTxCount())
}
