// Package authsig builds and checks the off-ledger authorizations for primary
// sales and refunds. Messages are packed like Solidity's abi.encodePacked,
// hashed with keccak256 and signed as an Ethereum personal message.
package authsig

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/cimillas/ticket-ledger/internal/domain"
)

// SaleTerms is what an authorized signer approves for a primary sale.
type SaleTerms struct {
	Buyer             common.Address
	EventID           uint64
	ResellProfitShare uint64
	PercentageAbsMax  uint64
	Seat              [3]uint64
	InitialPrice      *uint256.Int
}

// Preimage packs the terms: the 20-byte buyer followed by seven 32-byte
// big-endian words.
func (t SaleTerms) Preimage() []byte {
	buf := make([]byte, 0, common.AddressLength+7*32)
	buf = append(buf, t.Buyer.Bytes()...)
	buf = appendWord(buf, t.EventID)
	buf = appendWord(buf, t.ResellProfitShare)
	buf = appendWord(buf, t.PercentageAbsMax)
	for _, s := range t.Seat {
		buf = appendWord(buf, s)
	}
	price := t.InitialPrice
	if price == nil {
		price = new(uint256.Int)
	}
	word := price.Bytes32()
	return append(buf, word[:]...)
}

// RefundTerms is what an authorized signer approves for a refund.
type RefundTerms struct {
	Caller           common.Address
	EventID          uint64
	TicketID         uint64
	RefundPercentage uint64
	PercentageAbsMax uint64
}

// Preimage packs the terms: the 20-byte caller followed by four 32-byte words.
func (t RefundTerms) Preimage() []byte {
	buf := make([]byte, 0, common.AddressLength+4*32)
	buf = append(buf, t.Caller.Bytes()...)
	buf = appendWord(buf, t.EventID)
	buf = appendWord(buf, t.TicketID)
	buf = appendWord(buf, t.RefundPercentage)
	return appendWord(buf, t.PercentageAbsMax)
}

func appendWord(buf []byte, v uint64) []byte {
	word := uint256.NewInt(v).Bytes32()
	return append(buf, word[:]...)
}

// Digest is the hash that gets signed: the personal-message hash of
// keccak256(preimage).
func Digest(preimage []byte) []byte {
	return accounts.TextHash(crypto.Keccak256(preimage))
}

// Signature is a recoverable secp256k1 signature. V is 27 or 28.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// Sign signs the digest of preimage with key.
func Sign(preimage []byte, key *ecdsa.PrivateKey) (Signature, error) {
	raw, err := crypto.Sign(Digest(preimage), key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign: %w", err)
	}
	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64] + 27
	return sig, nil
}

// Recover returns the identity that signed the digest of preimage.
func Recover(preimage []byte, sig Signature) (common.Address, error) {
	v := sig.V
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, domain.ErrInvalidSignature
	}

	raw := make([]byte, crypto.SignatureLength)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = v
	pub, err := crypto.SigToPub(Digest(preimage), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Hex encodes the signature as 0x-prefixed r ‖ s ‖ v.
func (s Signature) Hex() string {
	raw := make([]byte, 0, crypto.SignatureLength)
	raw = append(raw, s.R[:]...)
	raw = append(raw, s.S[:]...)
	raw = append(raw, s.V)
	return hexutil.Encode(raw)
}

// ParseSignature decodes the 65-byte r ‖ s ‖ v form produced by Hex.
func ParseSignature(s string) (Signature, error) {
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if len(raw) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("%w: want %d bytes, got %d", domain.ErrInvalidSignature, crypto.SignatureLength, len(raw))
	}
	var sig Signature
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64]
	return sig, nil
}
