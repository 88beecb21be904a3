package entity

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	KindLoanApprovedForSale EventKind = "LoanApprovedForSale"
	KindPaymentRecorded     EventKind = "PaymentRecorded"
	KindLoanSold            EventKind = "LoanSold"
)

var (
	ErrMissingLoanID  = errors.New("missing loan id")
	ErrMissingAmount  = errors.New("missing payment amount")
	ErrMissingTokenID = errors.New("missing token id")
)

// EventPayload is a closed set of per-kind payloads. Adding a new event kind
// means adding a new payload type here and handling it in every type switch.
type EventPayload interface {
	Kind() EventKind
	Validate() error
}

// ApprovalPayload is emitted by the source-chain loan registry when a loan is
// approved for sale. LoanID is the canonical string form, recovered from the
// approving transaction calldata when the log itself only carries its hash.
type ApprovalPayload struct {
	LoanID               string
	Lender               common.Address
	AskingPrice          *big.Int
	ModifiedInterestRate *big.Int
}

func (p *ApprovalPayload) Kind() EventKind { return KindLoanApprovedForSale }

func (p *ApprovalPayload) Validate() error {
	if p.LoanID == "" {
		return ErrMissingLoanID
	}
	if p.AskingPrice == nil {
		return fmt.Errorf("approval for loan %s: missing asking price", p.LoanID)
	}
	if p.ModifiedInterestRate == nil {
		return fmt.Errorf("approval for loan %s: missing modified interest rate", p.LoanID)
	}
	return nil
}

// PaymentPayload is emitted by the source-chain loan registry when a borrower
// payment is recorded.
type PaymentPayload struct {
	LoanID string
	Amount *big.Int
}

func (p *PaymentPayload) Kind() EventKind { return KindPaymentRecorded }

func (p *PaymentPayload) Validate() error {
	if p.LoanID == "" {
		return ErrMissingLoanID
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return ErrMissingAmount
	}
	return nil
}

// SalePayload is emitted by the destination-chain marketplace when a loan
// token changes hands.
type SalePayload struct {
	TokenID *big.Int
	Buyer   common.Address
	Price   *big.Int
}

func (p *SalePayload) Kind() EventKind { return KindLoanSold }

func (p *SalePayload) Validate() error {
	if p.TokenID == nil {
		return ErrMissingTokenID
	}
	if p.Buyer == (common.Address{}) {
		return fmt.Errorf("sale of token %s: missing buyer", p.TokenID)
	}
	return nil
}

// NormalizedEvent is the chain-agnostic unit of work produced by listeners
// and consumed by handlers through the event queue. Immutable after creation.
type NormalizedEvent struct {
	SourceChain     string
	TransactionHash common.Hash
	BlockNumber     uint64
	LogIndex        uint
	Payload         EventPayload
}

func (e *NormalizedEvent) Kind() EventKind {
	return e.Payload.Kind()
}

// ID is the dedup identity key of the originating chain log.
func (e *NormalizedEvent) ID() string {
	return fmt.Sprintf("%s-%s-%d", e.Kind(), e.TransactionHash, e.LogIndex)
}
