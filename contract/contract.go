package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract/abi"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/ethclient"
)

var ErrTxReverted = fmt.Errorf("transaction reverted")

// Contract is a named, ABI-typed handle over a deployed contract. All chain
// access of the relayer core goes through these handles.
type Contract struct {
	address common.Address
	client  ethclient.Client
	abi     abi.ABI
}

func NewContract(client ethclient.Client, addr common.Address, abi abi.ABI) *Contract {
	return &Contract{addr, client, abi}
}

func (c *Contract) Address() common.Address {
	return c.address
}

func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// Call performs a read-only contract call and unpacks the return values.
func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode abi calldata: %w", err)
	}
	res, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot call %s(...): %w", method, err)
	}
	out, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s(...) result: %w", method, err)
	}
	return out, nil
}

// Submit packs, signs and submits a state-changing call without waiting for
// its receipt.
func (c *Contract) Submit(ctx context.Context, sender *TxSender, method string, args ...interface{}) (*types.Transaction, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode abi calldata: %w", err)
	}
	tx, err := sender.Send(ctx, c.address, data)
	if err != nil {
		return nil, fmt.Errorf("cannot send %s(...): %w", method, err)
	}
	return tx, nil
}

// Transact submits a state-changing call and waits for its receipt. A
// mined-but-reverted transaction is returned as ErrTxReverted.
func (c *Contract) Transact(ctx context.Context, sender *TxSender, method string, args ...interface{}) (*types.Receipt, error) {
	tx, err := c.Submit(ctx, sender, method, args...)
	if err != nil {
		return nil, err
	}
	receipt, err := c.client.WaitForReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, fmt.Errorf("can't get receipt for %s(...): %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s(...) in tx %s: %w", method, tx.Hash(), ErrTxReverted)
	}
	return receipt, nil
}

func (c *Contract) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	return c.abi.ParseLog(log)
}

func (c *Contract) DecodeCallData(data []byte) (string, map[string]interface{}, error) {
	return c.abi.DecodeCallData(data)
}
