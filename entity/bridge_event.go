package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BridgeEvent is the persisted history record of a successfully processed
// cross-chain event, served by the presenter's per-loan and per-token lookups.
type BridgeEvent struct {
	ID              uint        `db:"id"`
	Kind            EventKind   `db:"kind"`
	ChainID         string      `db:"chain_id"`
	LoanID          string      `db:"loan_id"`
	TokenID         *string     `db:"token_id"`
	TransactionHash common.Hash `db:"transaction_hash"`
	BlockNumber     uint64      `db:"block_number"`
	LogIndex        uint        `db:"log_index"`
	Details         string      `db:"details"`
	CreatedAt       *time.Time  `db:"created_at"`
}

type BridgeEventsRepo interface {
	Ensure(ctx context.Context, event *BridgeEvent) error
	FindByLoanID(ctx context.Context, loanID string) ([]*BridgeEvent, error)
	FindByTokenID(ctx context.Context, tokenID string) ([]*BridgeEvent, error)
}
