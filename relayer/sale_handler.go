package relayer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
)

// SaleHandler mirrors a destination-chain sale back onto the source chain.
// No multi-sig is involved: the source chain merely records a fact whose
// authority originates from the destination contract's own state.
type SaleHandler struct {
	logger logging.Logger
	state  *BridgeState
	src    *SourceChain
	dst    *DestinationChain
}

func NewSaleHandler(logger logging.Logger, state *BridgeState, src *SourceChain, dst *DestinationChain) *SaleHandler {
	return &SaleHandler{
		logger: logger.WithField("handler", "sale"),
		state:  state,
		src:    src,
		dst:    dst,
	}
}

func (h *SaleHandler) Process(ctx context.Context, event *entity.NormalizedEvent) (*Result, error) {
	payload, ok := event.Payload.(*entity.SalePayload)
	if !ok {
		return nil, fmt.Errorf("sale handler got %s event", event.Kind())
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sale event: %w", err)
	}
	logger := h.logger.WithFields(logrus.Fields{
		"token_id": payload.TokenID,
		"buyer":    payload.Buyer,
	})
	logger.Info("processing loan sale")

	// The loan id is resolved through the destination chain, never through
	// the local mapping, which may be stale or missing.
	loanID, err := h.dst.GetLoanIDForToken(ctx, payload.TokenID)
	if err != nil {
		return nil, fmt.Errorf("can't resolve loan id for token %s: %w", payload.TokenID, err)
	}
	logger = logger.WithField("loan_id", loanID)

	_, err = submitTracked(ctx, h.state, h.src.Client, h.src.Sender, h.src.LoanRegistry, loanID,
		"recordLoanSale", loanID, payload.Buyer, payload.Price)
	if err != nil {
		return nil, fmt.Errorf("can't record sale of loan %s: %w", loanID, err)
	}
	h.state.IncrementMetric(MetricSalesRecorded)
	logger.Info("sale recorded on source chain")
	return &Result{Success: true, LoanID: loanID, TokenID: payload.TokenID}, nil
}
