package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Action tags committed into every authorized message hash.
const (
	TagApproved = "APPROVED"
	TagMint     = "MINT"
	TagPayment  = "PAYMENT"
)

// ValidatorSet holds the configured validator keys and produces ordered
// signature sets over authorized message hashes. The signature threshold is
// enforced by the destination contract, not here.
type ValidatorSet struct {
	keys      []*ecdsa.PrivateKey
	addresses []common.Address
}

func NewValidatorSet(hexKeys []string) (*ValidatorSet, error) {
	if len(hexKeys) == 0 {
		return nil, fmt.Errorf("validator set requires at least one key")
	}
	s := &ValidatorSet{
		keys:      make([]*ecdsa.PrivateKey, 0, len(hexKeys)),
		addresses: make([]common.Address, 0, len(hexKeys)),
	}
	for i, hexKey := range hexKeys {
		key, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return nil, fmt.Errorf("can't parse validator key #%d: %w", i, err)
		}
		s.keys = append(s.keys, key)
		s.addresses = append(s.addresses, crypto.PubkeyToAddress(key.PublicKey))
	}
	return s, nil
}

func (s *ValidatorSet) Size() int {
	return len(s.keys)
}

func (s *ValidatorSet) Addresses() []common.Address {
	return s.addresses
}

// Sign produces one EIP-191 signature per validator key over the message
// hash, in configured key order. The order is part of the wire contract.
func (s *ValidatorSet) Sign(msgHash common.Hash) ([][]byte, error) {
	sigs := make([][]byte, 0, len(s.keys))
	for i, key := range s.keys {
		sig, err := crypto.Sign(accounts.TextHash(msgHash[:]), key)
		if err != nil {
			return nil, fmt.Errorf("can't sign with validator key #%d: %w", i, err)
		}
		sig[64] += 27
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// RecoverSigner returns the address whose key produced sig over msgHash.
func RecoverSigner(msgHash common.Hash, sig []byte) (common.Address, error) {
	sigCopy := make([]byte, len(sig))
	copy(sigCopy, sig)
	if len(sigCopy) >= 65 && sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}
	pk, err := crypto.SigToPub(accounts.TextHash(msgHash[:]), sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("can't recover ecdsa signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pk), nil
}

// ApprovalMessage commits the APPROVED marker for a loan.
func ApprovalMessage(loanID string, timestamp, nonce uint64) common.Hash {
	return hashPacked(TagApproved, loanID, new(big.Int).SetUint64(timestamp), new(big.Int).SetUint64(nonce))
}

// MintMessage commits the full loan snapshot being tokenized. The argument
// order is fixed, it must match the destination contract's hash
// reconstruction exactly.
func MintMessage(loanID string, lender common.Address, balance, scheduledPayment, modifiedInterestRate *big.Int,
	status uint8, location string, askingPrice *big.Int, timestamp, nonce uint64) common.Hash {
	return hashPacked(TagMint, loanID, lender, balance, scheduledPayment, modifiedInterestRate,
		status, location, askingPrice, new(big.Int).SetUint64(timestamp), new(big.Int).SetUint64(nonce))
}

// PaymentMessage commits a recorded payment for distribution.
func PaymentMessage(loanID string, amount *big.Int, timestamp, nonce uint64) common.Hash {
	return hashPacked(TagPayment, loanID, amount, new(big.Int).SetUint64(timestamp), new(big.Int).SetUint64(nonce))
}

// hashPacked keccak-hashes the solidity abi.encodePacked form of the given
// values: raw bytes for strings and addresses, 32-byte big-endian words for
// uint256, a single byte for uint8.
func hashPacked(values ...interface{}) common.Hash {
	var packed []byte
	for _, value := range values {
		switch v := value.(type) {
		case string:
			packed = append(packed, []byte(v)...)
		case common.Address:
			packed = append(packed, v.Bytes()...)
		case *big.Int:
			packed = append(packed, common.LeftPadBytes(v.Bytes(), 32)...)
		case uint8:
			packed = append(packed, v)
		default:
			panic(fmt.Sprintf("unsupported packed value type %T", value))
		}
	}
	return crypto.Keccak256Hash(packed)
}
