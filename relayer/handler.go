package relayer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/ethclient"
)

// Result is the outcome of one handler invocation. Success=false with a nil
// error is a benign short-circuit (already minted, loan not tokenized), not a
// failure: the queue treats it as processed.
type Result struct {
	Success bool
	Reason  string
	LoanID  string
	TokenID *big.Int
}

// Handler turns one source-chain event into destination-chain transactions.
type Handler interface {
	Process(ctx context.Context, event *entity.NormalizedEvent) (*Result, error)
}

// submitTracked submits a contract call, registers it in the pending
// transaction bookkeeping while waiting for confirmation, and fails on
// reverted transactions.
func submitTracked(ctx context.Context, state *BridgeState, client ethclient.Client, sender *contract.TxSender,
	c *contract.Contract, loanID, method string, args ...interface{}) (*types.Receipt, error) {
	tx, err := c.Submit(ctx, sender, method, args...)
	if err != nil {
		return nil, err
	}
	state.TrackPendingTx(client.ChainID(), loanID, tx.Hash())
	defer state.ResolvePendingTx(tx.Hash())
	receipt, err := client.WaitForReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, fmt.Errorf("can't get receipt for %s(...): %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s(...) in tx %s: %w", method, tx.Hash(), contract.ErrTxReverted)
	}
	return receipt, nil
}
