package relayer

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/utils"
)

// Counter names tracked by the bridge state.
const (
	MetricEventsProcessed      = "events_processed"
	MetricNFTsMinted           = "nfts_minted"
	MetricSalesRecorded        = "sales_recorded"
	MetricPaymentsDistributed  = "payments_distributed"
	MetricErrors               = "errors"
	MetricSkippedMintTransfers = "skipped_mint_transfers"
)

const (
	defaultPendingTxTTL  = time.Hour
	pendingSweepInterval = time.Hour
)

// PendingTx is bookkeeping for a submitted but not yet confirmed transaction.
type PendingTx struct {
	Hash        common.Hash
	ChainID     string
	LoanID      string
	SubmittedAt time.Time
}

// BridgeState tracks the loan to token mapping, per-loan replay nonces,
// per-chain sync cursors, pending transaction bookkeeping and monotone
// counters. All mutations are mutex-protected, handlers run concurrently.
type BridgeState struct {
	mu          sync.RWMutex
	loanToToken map[string]*big.Int
	nonceByLoan map[string]uint64
	syncCursor  map[string]uint64
	pendingTxs  map[common.Hash]*PendingTx
	counters    map[string]uint64
	pendingTTL  time.Duration
}

func NewBridgeState() *BridgeState {
	return &BridgeState{
		loanToToken: make(map[string]*big.Int),
		nonceByLoan: make(map[string]uint64),
		syncCursor:  make(map[string]uint64),
		pendingTxs:  make(map[common.Hash]*PendingTx),
		counters:    make(map[string]uint64),
		pendingTTL:  defaultPendingTxTTL,
	}
}

// GetNFTForLoan returns the token minted for the loan, if any.
func (s *BridgeState) GetNFTForLoan(loanID string) (*big.Int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokenID, ok := s.loanToToken[loanID]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(tokenID), true
}

// MapLoanToNFT writes the loan to token mapping, first writer wins. Returns
// false if a mapping for the loan already exists, the existing mapping is
// never overwritten.
func (s *BridgeState) MapLoanToNFT(loanID string, tokenID *big.Int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loanToToken[loanID]; ok {
		return false
	}
	s.loanToToken[loanID] = new(big.Int).Set(tokenID)
	MappedLoans.Set(float64(len(s.loanToToken)))
	return true
}

// GetNonce returns the loan's current replay nonce and advances it. Sequences
// for different loans are independent.
func (s *BridgeState) GetNonce(loanID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonce := s.nonceByLoan[loanID]
	s.nonceByLoan[loanID] = nonce + 1
	return nonce
}

// UpdateSyncState records the last observed block height for a chain.
// Advisory only, used for monitoring, never for replay or resume logic.
func (s *BridgeState) UpdateSyncState(chainID string, height uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncCursor[chainID] = height
	SyncBlock.WithLabelValues(chainID).Set(float64(height))
}

func (s *BridgeState) SyncState() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make(map[string]uint64, len(s.syncCursor))
	for chainID, height := range s.syncCursor {
		res[chainID] = height
	}
	return res
}

func (s *BridgeState) IncrementMetric(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name]++
	CoreCounters.WithLabelValues(name).Inc()
}

func (s *BridgeState) Metrics() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make(map[string]uint64, len(s.counters))
	for name, value := range s.counters {
		res[name] = value
	}
	return res
}

func (s *BridgeState) TrackPendingTx(chainID, loanID string, hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingTxs[hash] = &PendingTx{
		Hash:        hash,
		ChainID:     chainID,
		LoanID:      loanID,
		SubmittedAt: time.Now(),
	}
	PendingTxs.Set(float64(len(s.pendingTxs)))
}

func (s *BridgeState) ResolvePendingTx(hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingTxs, hash)
	PendingTxs.Set(float64(len(s.pendingTxs)))
}

func (s *BridgeState) PendingTxCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pendingTxs)
}

// CleanupPendingTxs drops pending transaction entries older than the TTL and
// returns the number of dropped entries.
func (s *BridgeState) CleanupPendingTxs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	deadline := time.Now().Add(-s.pendingTTL)
	for hash, tx := range s.pendingTxs {
		if tx.SubmittedAt.Before(deadline) {
			delete(s.pendingTxs, hash)
			expired++
		}
	}
	PendingTxs.Set(float64(len(s.pendingTxs)))
	return expired
}

// StartPendingTxSweeper periodically expires stale pending transaction
// bookkeeping until the context is cancelled.
func (s *BridgeState) StartPendingTxSweeper(ctx context.Context, logger logging.Logger) {
	for {
		if utils.ContextSleep(ctx, pendingSweepInterval) == nil {
			return
		}
		if expired := s.CleanupPendingTxs(); expired > 0 {
			logger.WithFields(logrus.Fields{
				"expired": expired,
			}).Warn("dropped stale pending transactions")
		}
	}
}
