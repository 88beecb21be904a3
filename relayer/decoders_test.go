package relayer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract/abi"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
)

// stubClient serves canned transactions for calldata resolution. Everything
// else is unreachable from the normalizers under test.
type stubClient struct {
	chainID  string
	txByHash map[common.Hash]*types.Transaction
}

func (c *stubClient) ChainID() string      { return c.chainID }
func (c *stubClient) Signer() types.Signer { return types.NewLondonSigner(big.NewInt(1337)) }

func (c *stubClient) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }

func (c *stubClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return nil, errors.New("unexpected contract call")
}

func (c *stubClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	tx, ok := c.txByHash[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return tx, nil
}

func (c *stubClient) TransactionReceiptByHash(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (c *stubClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions are not supported")
}

func (c *stubClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return errors.New("unexpected transaction")
}

func (c *stubClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (c *stubClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (c *stubClient) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (c *stubClient) Close() {}

var (
	testBridgeAddr      = common.HexToAddress("0x1000000000000000000000000000000000000002")
	testNFTAddr         = common.HexToAddress("0x2000000000000000000000000000000000000001")
	testMarketplaceAddr = common.HexToAddress("0x2000000000000000000000000000000000000004")
	testLender          = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

func newStubSourceChain(txs ...*types.Transaction) *SourceChain {
	client := &stubClient{chainID: "11155111", txByHash: make(map[common.Hash]*types.Transaction)}
	for _, tx := range txs {
		client.txByHash[tx.Hash()] = tx
	}
	return &SourceChain{
		Client:            client,
		MarketplaceBridge: contract.NewContract(client, testBridgeAddr, abi.MarketplaceBridge),
	}
}

func newStubDestinationChain() *DestinationChain {
	client := &stubClient{chainID: "80001"}
	return &DestinationChain{
		Client:      client,
		LoanNFT:     contract.NewContract(client, testNFTAddr, abi.LoanNFT),
		Marketplace: contract.NewContract(client, testMarketplaceAddr, abi.Marketplace),
	}
}

func packTx(t *testing.T, a abi.ABI, to common.Address, method string, args ...interface{}) *types.Transaction {
	t.Helper()
	data, err := a.Pack(method, args...)
	require.NoError(t, err)
	return types.NewTx(&types.LegacyTx{To: &to, Data: data})
}

func approvalLog(t *testing.T, loanID string, txHash common.Hash) *types.Log {
	t.Helper()
	data, err := abi.MarketplaceBridge.Events["LoanApprovedForSale"].Inputs.NonIndexed().Pack(
		big.NewInt(500000), big.NewInt(550))
	require.NoError(t, err)
	return &types.Log{
		Address: testBridgeAddr,
		Topics: []common.Hash{
			abi.MarketplaceBridge.Events["LoanApprovedForSale"].ID,
			crypto.Keccak256Hash([]byte(loanID)),
			testLender.Hash(),
		},
		Data:        data,
		TxHash:      txHash,
		BlockNumber: 100,
		Index:       2,
	}
}

func TestNormalizeApprovalResolvesHashedLoanID(t *testing.T) {
	t.Parallel()

	tx := packTx(t, abi.MarketplaceBridge, testBridgeAddr,
		"approveLoanForSale", "GM912D0006", big.NewInt(500000), big.NewInt(550))
	src := newStubSourceChain(tx)

	event, err := normalizeApproval(src)(context.Background(), approvalLog(t, "GM912D0006", tx.Hash()))
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, entity.KindLoanApprovedForSale, event.Kind())
	require.Equal(t, "11155111", event.SourceChain)
	require.Equal(t, uint64(100), event.BlockNumber)
	require.Equal(t, uint(2), event.LogIndex)

	payload := event.Payload.(*entity.ApprovalPayload)
	require.Equal(t, "GM912D0006", payload.LoanID)
	require.Equal(t, testLender, payload.Lender)
	require.Equal(t, int64(500000), payload.AskingPrice.Int64())
	require.Equal(t, int64(550), payload.ModifiedInterestRate.Int64())
}

func TestNormalizeApprovalRejectsMismatchedHash(t *testing.T) {
	t.Parallel()

	// Calldata carries a different loan id than the hash committed in the log.
	tx := packTx(t, abi.MarketplaceBridge, testBridgeAddr,
		"approveLoanForSale", "GM912D0007", big.NewInt(500000), big.NewInt(550))
	src := newStubSourceChain(tx)

	event, err := normalizeApproval(src)(context.Background(), approvalLog(t, "GM912D0006", tx.Hash()))
	require.Error(t, err)
	require.Nil(t, event)
}

func TestNormalizeApprovalFailsOnMissingTransaction(t *testing.T) {
	t.Parallel()

	src := newStubSourceChain()
	event, err := normalizeApproval(src)(context.Background(), approvalLog(t, "GM912D0006", common.HexToHash("0xdead")))
	require.Error(t, err)
	require.Nil(t, event)
}

func TestNormalizePaymentResolvesHashedLoanID(t *testing.T) {
	t.Parallel()

	tx := packTx(t, abi.MarketplaceBridge, testBridgeAddr, "recordPayment", "GM912D0006", big.NewInt(2500))
	src := newStubSourceChain(tx)

	data, err := abi.MarketplaceBridge.Events["PaymentRecorded"].Inputs.NonIndexed().Pack(big.NewInt(2500))
	require.NoError(t, err)
	event, err := normalizePayment(src)(context.Background(), &types.Log{
		Address: testBridgeAddr,
		Topics: []common.Hash{
			abi.MarketplaceBridge.Events["PaymentRecorded"].ID,
			crypto.Keccak256Hash([]byte("GM912D0006")),
		},
		Data:        data,
		TxHash:      tx.Hash(),
		BlockNumber: 101,
		Index:       0,
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, entity.KindPaymentRecorded, event.Kind())

	payload := event.Payload.(*entity.PaymentPayload)
	require.Equal(t, "GM912D0006", payload.LoanID)
	require.Equal(t, int64(2500), payload.Amount.Int64())
}

func TestNormalizeSale(t *testing.T) {
	t.Parallel()

	dst := newStubDestinationChain()
	buyer := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	data, err := abi.Marketplace.Events["LoanSold"].Inputs.NonIndexed().Pack(big.NewInt(480000))
	require.NoError(t, err)

	event, err := normalizeSale(dst)(context.Background(), &types.Log{
		Address: testMarketplaceAddr,
		Topics: []common.Hash{
			abi.Marketplace.Events["LoanSold"].ID,
			common.BigToHash(big.NewInt(7)),
			buyer.Hash(),
		},
		Data:        data,
		TxHash:      common.HexToHash("0x09"),
		BlockNumber: 200,
		Index:       1,
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, entity.KindLoanSold, event.Kind())

	payload := event.Payload.(*entity.SalePayload)
	require.Equal(t, int64(7), payload.TokenID.Int64())
	require.Equal(t, buyer, payload.Buyer)
	require.Equal(t, int64(480000), payload.Price.Int64())
}

func transferLog(from, to common.Address, tokenID *big.Int) *types.Log {
	return &types.Log{
		Address: testNFTAddr,
		Topics: []common.Hash{
			abi.LoanNFT.Events["Transfer"].ID,
			from.Hash(),
			to.Hash(),
			common.BigToHash(tokenID),
		},
		TxHash:      common.HexToHash("0x0a"),
		BlockNumber: 201,
		Index:       0,
	}
}

func TestNormalizeTransferFiltersMintAndEscrow(t *testing.T) {
	t.Parallel()

	dst := newStubDestinationChain()
	state := NewBridgeState()
	normalize := normalizeTransfer(dst, state)
	holder := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	// Mint transfer from the burn address is filtered, only counted.
	event, err := normalize(context.Background(), transferLog(common.Address{}, holder, big.NewInt(7)))
	require.NoError(t, err)
	require.Nil(t, event)
	require.Equal(t, uint64(1), state.Metrics()[MetricSkippedMintTransfers])

	// Escrow transfer out of the marketplace is filtered silently, the
	// LoanSold event already covers it.
	event, err = normalize(context.Background(), transferLog(testMarketplaceAddr, holder, big.NewInt(7)))
	require.NoError(t, err)
	require.Nil(t, event)
	require.Equal(t, uint64(1), state.Metrics()[MetricSkippedMintTransfers])

	// Listing a token moves it into escrow, that is not a sale either.
	event, err = normalize(context.Background(), transferLog(holder, testMarketplaceAddr, big.NewInt(7)))
	require.NoError(t, err)
	require.Nil(t, event)
	require.Equal(t, uint64(1), state.Metrics()[MetricSkippedMintTransfers])
}

func TestNormalizeTransferKeepsDirectTransfers(t *testing.T) {
	t.Parallel()

	dst := newStubDestinationChain()
	state := NewBridgeState()
	seller := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	receiver := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	event, err := normalizeTransfer(dst, state)(context.Background(), transferLog(seller, receiver, big.NewInt(7)))
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, entity.KindLoanSold, event.Kind())

	payload := event.Payload.(*entity.SalePayload)
	require.Equal(t, int64(7), payload.TokenID.Int64())
	require.Equal(t, receiver, payload.Buyer)
	require.Zero(t, payload.Price.Sign())
}
