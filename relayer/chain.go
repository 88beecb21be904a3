package relayer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/config"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract/abi"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/ethclient"
)

// SourceChain bundles the source ledger client with its named contract
// handles. The core never calls the chain outside of these bindings.
type SourceChain struct {
	Client            ethclient.Client
	LoanRegistry      *contract.Contract
	MarketplaceBridge *contract.Contract
	Sender            *contract.TxSender
}

// DestinationChain bundles the destination ledger client with its named
// contract handles.
type DestinationChain struct {
	Client             ethclient.Client
	LoanNFT            *contract.Contract
	BridgeReceiver     *contract.Contract
	PaymentDistributor *contract.Contract
	Marketplace        *contract.Contract
	Sender             *contract.TxSender
}

func NewSourceChain(cfg *config.SourceSideConfig, relayerKey string) (*SourceChain, error) {
	client, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.WS.Host, cfg.Chain.RPC.Timeout, cfg.Chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("can't dial source chain %s: %w", cfg.ChainName, err)
	}
	sender, err := contract.NewTxSender(client, relayerKey)
	if err != nil {
		return nil, err
	}
	return &SourceChain{
		Client:            client,
		LoanRegistry:      contract.NewContract(client, cfg.Contracts.LoanRegistry, abi.LoanRegistry),
		MarketplaceBridge: contract.NewContract(client, cfg.Contracts.MarketplaceBridge, abi.MarketplaceBridge),
		Sender:            sender,
	}, nil
}

// Loan is the registry's current snapshot of a loan, fetched right before
// mirroring it to the destination chain.
type Loan struct {
	Lender               common.Address
	Balance              *big.Int
	ScheduledPayment     *big.Int
	ModifiedInterestRate *big.Int
	Status               uint8
	Location             string
	AskingPrice          *big.Int
}

// GetLoan fetches the loan snapshot from the source-chain registry.
func (s *SourceChain) GetLoan(ctx context.Context, loanID string) (*Loan, error) {
	out, err := s.LoanRegistry.Call(ctx, "getLoan", loanID)
	if err != nil {
		return nil, err
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("unexpected getLoan result arity %d", len(out))
	}
	loan := &Loan{}
	var ok bool
	if loan.Lender, ok = out[0].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected getLoan lender type %T", out[0])
	}
	loan.Balance, _ = out[1].(*big.Int)
	loan.ScheduledPayment, _ = out[2].(*big.Int)
	loan.ModifiedInterestRate, _ = out[3].(*big.Int)
	loan.Status, _ = out[4].(uint8)
	loan.Location, _ = out[5].(string)
	loan.AskingPrice, _ = out[6].(*big.Int)
	if loan.Balance == nil || loan.ScheduledPayment == nil || loan.AskingPrice == nil {
		return nil, fmt.Errorf("incomplete getLoan result for %s", loanID)
	}
	return loan, nil
}

// GetLoanIDForToken resolves the loan id behind a destination token via a
// chain call, never trusting locally cached mappings.
func (d *DestinationChain) GetLoanIDForToken(ctx context.Context, tokenID *big.Int) (string, error) {
	out, err := d.LoanNFT.Call(ctx, "getLoanId", tokenID)
	if err != nil {
		return "", err
	}
	loanID, ok := out[0].(string)
	if !ok || loanID == "" {
		return "", fmt.Errorf("token %s has no loan id on the destination chain", tokenID)
	}
	return loanID, nil
}

func NewDestinationChain(cfg *config.DestinationSideConfig, relayerKey string) (*DestinationChain, error) {
	client, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.WS.Host, cfg.Chain.RPC.Timeout, cfg.Chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("can't dial destination chain %s: %w", cfg.ChainName, err)
	}
	sender, err := contract.NewTxSender(client, relayerKey)
	if err != nil {
		return nil, err
	}
	return &DestinationChain{
		Client:             client,
		LoanNFT:            contract.NewContract(client, cfg.Contracts.LoanNFT, abi.LoanNFT),
		BridgeReceiver:     contract.NewContract(client, cfg.Contracts.BridgeReceiver, abi.BridgeReceiver),
		PaymentDistributor: contract.NewContract(client, cfg.Contracts.PaymentDistributor, abi.PaymentDistributor),
		Marketplace:        contract.NewContract(client, cfg.Contracts.Marketplace, abi.Marketplace),
		Sender:             sender,
	}, nil
}
