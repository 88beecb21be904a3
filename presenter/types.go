package presenter

import (
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/relayer"
)

// BridgeStatus is the read-only view of the running relayer exposed over HTTP.
type BridgeStatus interface {
	QueueStatus() relayer.QueueStatus
	SyncState() map[string]uint64
	Metrics() map[string]uint64
	PendingTxCount() int
}

type HealthResult struct {
	Status     string            `json:"status"`
	Metrics    map[string]uint64 `json:"metrics"`
	PendingTxs int               `json:"pendingTxs"`
}

type SyncResult struct {
	Chains map[string]uint64 `json:"chains"`
}

type EventInfo struct {
	Kind            entity.EventKind `json:"kind"`
	ChainID         string           `json:"chainId"`
	LoanID          string           `json:"loanId"`
	TokenID         *string          `json:"tokenId,omitempty"`
	TransactionHash string           `json:"transactionHash"`
	BlockNumber     uint64           `json:"blockNumber"`
	LogIndex        uint             `json:"logIndex"`
	Details         string           `json:"details,omitempty"`
}

type EventsResult struct {
	Events []*EventInfo `json:"events"`
}

func newEventInfo(event *entity.BridgeEvent) *EventInfo {
	return &EventInfo{
		Kind:            event.Kind,
		ChainID:         event.ChainID,
		LoanID:          event.LoanID,
		TokenID:         event.TokenID,
		TransactionHash: event.TransactionHash.Hex(),
		BlockNumber:     event.BlockNumber,
		LogIndex:        event.LogIndex,
		Details:         event.Details,
	}
}
