package settlehash

import (
	"bytes"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftremit/swiftremit/internal/errs"
)

func sample() Inputs {
	return Inputs{
		RemittanceID: 1,
		Sender:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Agent:        common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:       big.NewInt(10_000_000),
		Fee:          big.NewInt(250_000),
		Expiry:       0,
	}
}

func TestEncodeLayout(t *testing.T) {
	enc, err := Encode(sample())
	require.NoError(t, err)
	require.Len(t, enc, 88)

	// id: 8 bytes big-endian
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, enc[0:8])
	// sender: 20 bytes
	assert.Equal(t, bytes.Repeat([]byte{0x11}, 20), enc[8:28])
	// agent: 20 bytes
	assert.Equal(t, bytes.Repeat([]byte{0x22}, 20), enc[28:48])
	// amount 10_000_000 = 0x989680, right-aligned in 16 bytes
	assert.Equal(t, []byte{0x00, 0x98, 0x96, 0x80}, enc[60:64])
	assert.Equal(t, bytes.Repeat([]byte{0}, 12), enc[48:60])
	// expiry absent: all zero
	assert.Equal(t, bytes.Repeat([]byte{0}, 8), enc[80:88])
}

func TestComputeIsDeterministic(t *testing.T) {
	a, err := Compute(sample())
	require.NoError(t, err)
	b, err := Compute(sample())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// The hash is exactly SHA-256 of the canonical encoding.
	enc, err := Encode(sample())
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256(enc), a)
}

func TestSingleFieldChangeChangesHash(t *testing.T) {
	base, err := Compute(sample())
	require.NoError(t, err)

	variants := []func(*Inputs){
		func(in *Inputs) { in.RemittanceID = 2 },
		func(in *Inputs) { in.Sender[19] ^= 1 },
		func(in *Inputs) { in.Agent[0] ^= 1 },
		func(in *Inputs) { in.Amount = big.NewInt(10_000_001) },
		func(in *Inputs) { in.Fee = big.NewInt(250_001) },
		func(in *Inputs) { in.Expiry = 1 },
	}
	for i, mutate := range variants {
		in := sample()
		mutate(&in)
		got, err := Compute(in)
		require.NoError(t, err)
		assert.NotEqual(t, base, got, "variant %d did not change the hash", i)
	}
}

func TestNegativeAmountEncoding(t *testing.T) {
	in := sample()
	in.Amount = big.NewInt(-1)
	enc, err := Encode(in)
	require.NoError(t, err)
	// two's-complement -1: all ones across the 16 amount bytes
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 16), enc[48:64])
}

func TestOutOfRangeAmountRejected(t *testing.T) {
	in := sample()
	in.Amount = new(big.Int).Lsh(big.NewInt(1), 127)
	_, err := Compute(in)
	assert.ErrorIs(t, err, errs.Overflow)
}
