package abi

//nolint:golint
import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed loan_registry.json
var loanRegistryJSONABI string

//go:embed marketplace_bridge.json
var marketplaceBridgeJSONABI string

//go:embed loan_nft.json
var loanNFTJSONABI string

//go:embed bridge_receiver.json
var bridgeReceiverJSONABI string

//go:embed payment_distributor.json
var paymentDistributorJSONABI string

//go:embed marketplace.json
var marketplaceJSONABI string

var (
	LoanRegistry       = MustReadABI(loanRegistryJSONABI)
	MarketplaceBridge  = MustReadABI(marketplaceBridgeJSONABI)
	LoanNFT            = MustReadABI(loanNFTJSONABI)
	BridgeReceiver     = MustReadABI(bridgeReceiverJSONABI)
	PaymentDistributor = MustReadABI(paymentDistributorJSONABI)
	Marketplace        = MustReadABI(marketplaceJSONABI)
)

// Canonical event signatures observed by the listeners.
const (
	LoanApprovedForSale = "LoanApprovedForSale(bytes32,address,uint256,uint256)"
	PaymentRecorded     = "PaymentRecorded(bytes32,uint256)"
	LoanSold            = "LoanSold(uint256,address,uint256)"
	Transfer            = "Transfer(address,address,uint256)"
	LoanMinted          = "LoanMinted(uint256,bytes32)"
)

// ABI wraps the go-ethereum ABI with log parsing helpers.
type ABI struct {
	abi.ABI
}

func MustReadABI(jsonABI string) ABI {
	res, err := abi.JSON(strings.NewReader(jsonABI))
	if err != nil {
		panic(err)
	}
	return ABI{res}
}

func (a ABI) AllEvents() map[string]bool {
	events := make(map[string]bool, len(a.Events))
	for _, event := range a.Events {
		events[event.Sig] = true
	}
	return events
}

func (a ABI) FindMatchingEventABI(topics []common.Hash) *abi.Event {
	for _, event := range a.Events {
		if event.ID != topics[0] {
			continue
		}
		indexed := indexedArguments(event.Inputs)
		if len(indexed) == len(topics)-1 {
			return &event
		}
	}
	return nil
}

// ParseLog decodes a raw chain log into the event name and a map of its
// decoded arguments, both indexed and non-indexed.
func (a ABI) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	if len(log.Topics) == 0 {
		return "", nil, fmt.Errorf("can't parse anonymous event")
	}
	event := a.FindMatchingEventABI(log.Topics)
	if event == nil {
		return "", nil, fmt.Errorf("no matching event found for topic %s", log.Topics[0])
	}
	data := make(map[string]interface{})
	if err := abi.ParseTopicsIntoMap(data, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return "", nil, fmt.Errorf("can't parse indexed topics: %w", err)
	}
	if err := event.Inputs.UnpackIntoMap(data, log.Data); err != nil {
		return "", nil, fmt.Errorf("can't unpack event data: %w", err)
	}
	return event.Name, data, nil
}

// DecodeCallData recovers the method name and arguments from raw transaction
// calldata. Used to resolve identifiers that appear only hashed in the logs.
func (a ABI) DecodeCallData(data []byte) (string, map[string]interface{}, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("calldata is too short")
	}
	for _, method := range a.Methods {
		if !bytes.Equal(method.ID, data[:4]) {
			continue
		}
		args := make(map[string]interface{})
		if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
			return "", nil, fmt.Errorf("can't unpack %s calldata: %w", method.Name, err)
		}
		return method.Name, args, nil
	}
	return "", nil, fmt.Errorf("no matching method for selector 0x%x", data[:4])
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
