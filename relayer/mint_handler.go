package relayer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/signer"
)

// ErrNoMintLog is returned when the mint transaction succeeds on-chain but
// emits no LoanMinted log. The token id is then unrecoverable, retrying
// blindly would repeat the on-chain side effect.
var ErrNoMintLog = errors.New("mint transaction emitted no LoanMinted log")

// MintHandler mirrors a source-chain loan approval onto the destination
// chain: an APPROVED marker first, then the multi-signed mint itself.
type MintHandler struct {
	logger     logging.Logger
	state      *BridgeState
	validators *signer.ValidatorSet
	src        *SourceChain
	dst        *DestinationChain
}

func NewMintHandler(logger logging.Logger, state *BridgeState, validators *signer.ValidatorSet, src *SourceChain, dst *DestinationChain) *MintHandler {
	return &MintHandler{
		logger:     logger.WithField("handler", "mint"),
		state:      state,
		validators: validators,
		src:        src,
		dst:        dst,
	}
}

func (h *MintHandler) Process(ctx context.Context, event *entity.NormalizedEvent) (*Result, error) {
	payload, ok := event.Payload.(*entity.ApprovalPayload)
	if !ok {
		return nil, fmt.Errorf("mint handler got %s event", event.Kind())
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid approval event: %w", err)
	}
	logger := h.logger.WithFields(logrus.Fields{
		"loan_id": payload.LoanID,
		"lender":  payload.Lender,
	})
	logger.Info("processing loan approval")

	// Primary defense against a redelivered approval causing a double mint.
	if tokenID, minted := h.state.GetNFTForLoan(payload.LoanID); minted {
		logger.WithField("token_id", tokenID).Info("loan already minted, skipping")
		return &Result{Success: false, Reason: "Already minted", LoanID: payload.LoanID, TokenID: tokenID}, nil
	}

	loan, err := h.src.GetLoan(ctx, payload.LoanID)
	if err != nil {
		return nil, fmt.Errorf("can't fetch loan %s: %w", payload.LoanID, err)
	}

	timestamp := uint64(time.Now().Unix())

	nonce := h.state.GetNonce(payload.LoanID)
	approvedSigs, err := h.validators.Sign(signer.ApprovalMessage(payload.LoanID, timestamp, nonce))
	if err != nil {
		return nil, err
	}
	_, err = submitTracked(ctx, h.state, h.dst.Client, h.dst.Sender, h.dst.BridgeReceiver, payload.LoanID,
		"markApproved", payload.LoanID, new(big.Int).SetUint64(timestamp), new(big.Int).SetUint64(nonce), approvedSigs)
	if err != nil {
		return nil, fmt.Errorf("can't mark approval for loan %s: %w", payload.LoanID, err)
	}
	logger.Info("approval marker recorded on destination chain")

	mintNonce := h.state.GetNonce(payload.LoanID)
	mintHash := signer.MintMessage(payload.LoanID, loan.Lender, loan.Balance, loan.ScheduledPayment,
		loan.ModifiedInterestRate, loan.Status, loan.Location, loan.AskingPrice, timestamp, mintNonce)
	mintSigs, err := h.validators.Sign(mintHash)
	if err != nil {
		return nil, err
	}
	receipt, err := submitTracked(ctx, h.state, h.dst.Client, h.dst.Sender, h.dst.BridgeReceiver, payload.LoanID,
		"mintLoan", payload.LoanID, loan.Lender, loan.Balance, loan.ScheduledPayment, loan.ModifiedInterestRate,
		loan.Status, loan.Location, loan.AskingPrice, new(big.Int).SetUint64(timestamp), new(big.Int).SetUint64(mintNonce), mintSigs)
	if err != nil {
		return nil, fmt.Errorf("can't mint loan %s: %w", payload.LoanID, err)
	}

	tokenID := h.findMintedTokenID(receipt.Logs)
	if tokenID == nil {
		return nil, fmt.Errorf("loan %s: %w", payload.LoanID, ErrNoMintLog)
	}
	logger = logger.WithField("token_id", tokenID)
	logger.Info("loan minted on destination chain")

	// Best effort: cross-reference the token on the source chain, a failure
	// here must not fail the mint.
	_, err = submitTracked(ctx, h.state, h.src.Client, h.src.Sender, h.src.LoanRegistry, payload.LoanID,
		"setTokenReference", payload.LoanID, tokenID)
	if err != nil {
		logger.WithError(err).Warn("can't write token reference back to the source chain")
	}

	if h.state.MapLoanToNFT(payload.LoanID, tokenID) {
		h.state.IncrementMetric(MetricNFTsMinted)
	} else {
		logger.Warn("loan was mapped concurrently while minting")
	}
	return &Result{Success: true, LoanID: payload.LoanID, TokenID: tokenID}, nil
}

func (h *MintHandler) findMintedTokenID(logs []*types.Log) *big.Int {
	for _, log := range logs {
		if log.Address != h.dst.BridgeReceiver.Address() {
			continue
		}
		name, data, err := h.dst.BridgeReceiver.ParseLog(log)
		if err != nil || name != "LoanMinted" {
			continue
		}
		if tokenID, ok := data["tokenId"].(*big.Int); ok {
			return tokenID
		}
	}
	return nil
}
