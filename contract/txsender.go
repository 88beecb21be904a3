package contract

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/ethclient"
)

// Gas estimation policy is out of scope for the relayer, destination calls
// fit comfortably under a fixed cap.
const txGasLimit = 3_000_000

// TxSender signs and submits transactions from the relayer account on one
// chain, serializing nonce assignment across concurrent handlers.
type TxSender struct {
	client  ethclient.Client
	key     *ecdsa.PrivateKey
	address common.Address

	mu          sync.Mutex
	nonce       uint64
	nonceSynced bool
}

func NewTxSender(client ethclient.Client, hexKey string) (*TxSender, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("can't parse relayer private key: %w", err)
	}
	return &TxSender{
		client:  client,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *TxSender) Address() common.Address {
	return s.address
}

func (s *TxSender) Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.nonceSynced {
		nonce, err := s.client.PendingNonceAt(ctx, s.address)
		if err != nil {
			return nil, fmt.Errorf("can't get pending nonce: %w", err)
		}
		s.nonce = nonce
		s.nonceSynced = true
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get gas price: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    s.nonce,
		To:       &to,
		Gas:      txGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signedTx, err := types.SignTx(tx, s.client.Signer(), s.key)
	if err != nil {
		return nil, fmt.Errorf("can't sign transaction: %w", err)
	}
	if err = s.client.SendTransaction(ctx, signedTx); err != nil {
		// force nonce refresh on the next send, the failure may be a nonce race
		s.nonceSynced = false
		return nil, fmt.Errorf("can't send transaction: %w", err)
	}
	s.nonce++
	return signedTx, nil
}
