package relayer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract/abi"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/ethclient"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
)

// NewSourceListener watches the source-chain marketplace bridge for loan
// approvals and recorded payments.
func NewSourceListener(logger logging.Logger, src *SourceChain, queue *Queue, state *BridgeState, pollEvery time.Duration) *Listener {
	l := NewListener(logger, src.Client, queue, state, pollEvery)
	l.Watch(src.MarketplaceBridge, abi.LoanApprovedForSale, normalizeApproval(src))
	l.Watch(src.MarketplaceBridge, abi.PaymentRecorded, normalizePayment(src))
	return l
}

// NewDestinationListener watches the destination-chain marketplace for sales
// and the loan NFT for raw token transfers.
func NewDestinationListener(logger logging.Logger, dst *DestinationChain, queue *Queue, state *BridgeState, pollEvery time.Duration) *Listener {
	l := NewListener(logger, dst.Client, queue, state, pollEvery)
	l.Watch(dst.Marketplace, abi.LoanSold, normalizeSale(dst))
	l.Watch(dst.LoanNFT, abi.Transfer, normalizeTransfer(dst, state))
	return l
}

// normalizeApproval decodes a LoanApprovedForSale log. The log only carries
// the keccak hash of the loan id, the canonical string is recovered from the
// approving transaction's calldata and cross-checked against the hash.
func normalizeApproval(src *SourceChain) NormalizeFunc {
	return func(ctx context.Context, log *types.Log) (*entity.NormalizedEvent, error) {
		_, data, err := src.MarketplaceBridge.ParseLog(log)
		if err != nil {
			return nil, err
		}
		loanIDHash, ok := data["loanIdHash"].([32]byte)
		if !ok {
			return nil, fmt.Errorf("approval log is missing loanIdHash")
		}
		loanID, err := resolveLoanID(ctx, src.Client, src.MarketplaceBridge, log.TxHash, loanIDHash)
		if err != nil {
			return nil, err
		}
		lender, _ := data["lender"].(common.Address)
		askingPrice, _ := data["askingPrice"].(*big.Int)
		modifiedRate, _ := data["modifiedInterestRate"].(*big.Int)
		return newEvent(src.Client.ChainID(), log, &entity.ApprovalPayload{
			LoanID:               loanID,
			Lender:               lender,
			AskingPrice:          askingPrice,
			ModifiedInterestRate: modifiedRate,
		}), nil
	}
}

func normalizePayment(src *SourceChain) NormalizeFunc {
	return func(ctx context.Context, log *types.Log) (*entity.NormalizedEvent, error) {
		_, data, err := src.MarketplaceBridge.ParseLog(log)
		if err != nil {
			return nil, err
		}
		loanIDHash, ok := data["loanIdHash"].([32]byte)
		if !ok {
			return nil, fmt.Errorf("payment log is missing loanIdHash")
		}
		loanID, err := resolveLoanID(ctx, src.Client, src.MarketplaceBridge, log.TxHash, loanIDHash)
		if err != nil {
			return nil, err
		}
		amount, _ := data["amount"].(*big.Int)
		return newEvent(src.Client.ChainID(), log, &entity.PaymentPayload{
			LoanID: loanID,
			Amount: amount,
		}), nil
	}
}

func normalizeSale(dst *DestinationChain) NormalizeFunc {
	return func(ctx context.Context, log *types.Log) (*entity.NormalizedEvent, error) {
		_, data, err := dst.Marketplace.ParseLog(log)
		if err != nil {
			return nil, err
		}
		tokenID, _ := data["tokenId"].(*big.Int)
		buyer, _ := data["buyer"].(common.Address)
		price, _ := data["price"].(*big.Int)
		return newEvent(dst.Client.ChainID(), log, &entity.SalePayload{
			TokenID: tokenID,
			Buyer:   buyer,
			Price:   price,
		}), nil
	}
}

// normalizeTransfer filters loan NFT transfers down to direct wallet-to-wallet
// moves. Mint transfers (from the burn address) and marketplace escrow
// transfers in either direction (covered by the LoanSold event) are dropped.
func normalizeTransfer(dst *DestinationChain, state *BridgeState) NormalizeFunc {
	return func(ctx context.Context, log *types.Log) (*entity.NormalizedEvent, error) {
		_, data, err := dst.LoanNFT.ParseLog(log)
		if err != nil {
			return nil, err
		}
		from, _ := data["from"].(common.Address)
		to, _ := data["to"].(common.Address)
		tokenID, _ := data["tokenId"].(*big.Int)
		if from == (common.Address{}) {
			state.IncrementMetric(MetricSkippedMintTransfers)
			return nil, nil
		}
		if from == dst.Marketplace.Address() || to == dst.Marketplace.Address() {
			return nil, nil
		}
		return newEvent(dst.Client.ChainID(), log, &entity.SalePayload{
			TokenID: tokenID,
			Buyer:   to,
			Price:   big.NewInt(0),
		}), nil
	}
}

// resolveLoanID re-fetches the transaction that emitted a log and recovers
// the canonical loan id string from its calldata.
func resolveLoanID(ctx context.Context, client ethclient.Client, c *contract.Contract, txHash common.Hash, loanIDHash [32]byte) (string, error) {
	tx, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		return "", fmt.Errorf("can't fetch originating transaction %s: %w", txHash, err)
	}
	method, args, err := c.DecodeCallData(tx.Data())
	if err != nil {
		return "", fmt.Errorf("can't decode calldata of %s: %w", txHash, err)
	}
	loanID, ok := args["loanId"].(string)
	if !ok || loanID == "" {
		return "", fmt.Errorf("calldata of %s(%s) carries no loan id", method, txHash)
	}
	if crypto.Keccak256Hash([]byte(loanID)) != common.Hash(loanIDHash) {
		return "", fmt.Errorf("loan id %q does not match the hash committed in the log", loanID)
	}
	return loanID, nil
}

func newEvent(chainID string, log *types.Log, payload entity.EventPayload) *entity.NormalizedEvent {
	return &entity.NormalizedEvent{
		SourceChain:     chainID,
		TransactionHash: log.TxHash,
		BlockNumber:     log.BlockNumber,
		LogIndex:        log.Index,
		Payload:         payload,
	}
}
