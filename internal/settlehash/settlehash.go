// Package settlehash computes the deterministic 32-byte settlement
// identifier used for cross-system reconciliation and replay detection.
//
// The encoding is a fixed-order concatenation with no salt and no
// environmental input: any implementation, in any language, fed the same
// fields produces the same bytes.
package settlehash

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/stroops"
)

// Inputs are the remittance fields covered by the settlement hash.
type Inputs struct {
	RemittanceID uint64
	Sender       common.Address
	Agent        common.Address
	Amount       *big.Int // stroops, signed 128-bit
	Fee          *big.Int // stroops, signed 128-bit
	Expiry       uint64   // ledger timestamp; 0 when absent
}

// encodedLen = 8 (id) + 20 (sender) + 20 (agent) + 16 (amount) + 16 (fee) + 8 (expiry)
const encodedLen = 88

// Encode returns the canonical byte encoding of the inputs:
//
//	id        8 bytes, big-endian unsigned
//	sender   20 bytes, canonical address encoding
//	agent    20 bytes, canonical address encoding
//	amount   16 bytes, big-endian two's-complement
//	fee      16 bytes, big-endian two's-complement
//	expiry    8 bytes, big-endian unsigned (zero if absent)
func Encode(in Inputs) ([]byte, error) {
	buf := make([]byte, 0, encodedLen)

	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], in.RemittanceID)
	buf = append(buf, u64[:]...)

	buf = append(buf, in.Sender.Bytes()...)
	buf = append(buf, in.Agent.Bytes()...)

	amount, err := stroops.EncodeBE(in.Amount)
	if err != nil {
		return nil, err
	}
	buf = append(buf, amount[:]...)

	fee, err := stroops.EncodeBE(in.Fee)
	if err != nil {
		return nil, err
	}
	buf = append(buf, fee[:]...)

	binary.BigEndian.PutUint64(u64[:], in.Expiry)
	buf = append(buf, u64[:]...)

	return buf, nil
}

// Compute returns SHA-256 of the canonical encoding.
func Compute(in Inputs) ([32]byte, error) {
	enc, err := Encode(in)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(enc), nil
}
