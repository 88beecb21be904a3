package relayer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/signer"
)

// PaymentHandler forwards a recorded borrower payment to the destination
// chain's payment distributor. Payments for loans that were never tokenized
// are a benign no-op, not an error.
type PaymentHandler struct {
	logger     logging.Logger
	state      *BridgeState
	validators *signer.ValidatorSet
	src        *SourceChain
	dst        *DestinationChain
}

func NewPaymentHandler(logger logging.Logger, state *BridgeState, validators *signer.ValidatorSet, src *SourceChain, dst *DestinationChain) *PaymentHandler {
	return &PaymentHandler{
		logger:     logger.WithField("handler", "payment"),
		state:      state,
		validators: validators,
		src:        src,
		dst:        dst,
	}
}

func (h *PaymentHandler) Process(ctx context.Context, event *entity.NormalizedEvent) (*Result, error) {
	payload, ok := event.Payload.(*entity.PaymentPayload)
	if !ok {
		return nil, fmt.Errorf("payment handler got %s event", event.Kind())
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payment event: %w", err)
	}
	logger := h.logger.WithFields(logrus.Fields{
		"loan_id": payload.LoanID,
		"amount":  payload.Amount,
	})
	logger.Info("processing recorded payment")

	tokenID, minted := h.state.GetNFTForLoan(payload.LoanID)
	if !minted {
		logger.Info("loan has no minted token, nothing to distribute")
		return &Result{Success: false, Reason: "NFT not found for this loan", LoanID: payload.LoanID}, nil
	}
	logger = logger.WithField("token_id", tokenID)

	h.refreshTokenMetadata(ctx, logger, payload.LoanID, tokenID)

	timestamp := uint64(time.Now().Unix())
	nonce := h.state.GetNonce(payload.LoanID)
	sigs, err := h.validators.Sign(signer.PaymentMessage(payload.LoanID, payload.Amount, timestamp, nonce))
	if err != nil {
		return nil, err
	}
	_, err = submitTracked(ctx, h.state, h.dst.Client, h.dst.Sender, h.dst.PaymentDistributor, payload.LoanID,
		"distributePayment", payload.LoanID, payload.Amount, new(big.Int).SetUint64(timestamp), new(big.Int).SetUint64(nonce), sigs)
	if err != nil {
		return nil, fmt.Errorf("can't distribute payment for loan %s: %w", payload.LoanID, err)
	}
	h.state.IncrementMetric(MetricPaymentsDistributed)
	logger.Info("payment distributed on destination chain")
	return &Result{Success: true, LoanID: payload.LoanID, TokenID: tokenID}, nil
}

// refreshTokenMetadata mirrors the loan's current balance and status onto
// the NFT. Best effort, a failure is logged and never fails the payment.
func (h *PaymentHandler) refreshTokenMetadata(ctx context.Context, logger logging.Logger, loanID string, tokenID *big.Int) {
	loan, err := h.src.GetLoan(ctx, loanID)
	if err != nil {
		logger.WithError(err).Warn("can't fetch loan for metadata refresh")
		return
	}
	_, err = submitTracked(ctx, h.state, h.dst.Client, h.dst.Sender, h.dst.LoanNFT, loanID,
		"updateLoanData", tokenID, loan.Balance, loan.Status)
	if err != nil {
		logger.WithError(err).Warn("can't refresh token metadata")
	}
}
