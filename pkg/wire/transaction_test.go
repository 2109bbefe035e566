package wire

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The genesis block coinbase transaction.
const genesisCoinbaseHex = "01000000" +
	"01" +
	"0000000000000000000000000000000000000000000000000000000000000000" +
	"ffffffff" +
	"4d" +
	"04ffff001d0104455468652054696d65732030332f4a616e2f32303039204368616e63656c6c6f72206f6e206272696e6b206f66207365636f6e64206261696c6f757420666f722062616e6b73" +
	"ffffffff" +
	"01" +
	"00f2052a01000000" +
	"43" +
	"4104678afdb0fe5548271967f1a67130b7105cd6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba0b8d578a4c702b6bf11d5fac" +
	"00000000"

func TestDecodeGenesisCoinbase(t *testing.T) {
	raw, err := hex.DecodeString(genesisCoinbaseHex)
	require.NoError(t, err)

	tx, err := DecodeTransaction(raw)
	require.NoError(t, err)

	assert.Equal(t, int32(1), tx.Version)
	require.Len(t, tx.TxIn, 1)
	require.Len(t, tx.TxOut, 1)
	assert.Equal(t, uint64(5_000_000_000), tx.TxOut[0].Value)
	assert.False(t, tx.HasWitness())
	assert.Equal(t, uint32(0), tx.LockTime)

	assert.Equal(t,
		"4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b",
		tx.TxID().String())

	// Re-encoding reproduces the input bytes exactly.
	assert.Equal(t, raw, tx.Encode())
	assert.Equal(t, len(raw), tx.SerializeSize())
}

func TestTransactionRoundTripSegwit(t *testing.T) {
	tx := &Transaction{
		Version: 2,
		TxIn: []*TxIn{{
			PreviousOutPoint: OutPoint{Index: 1},
			Sequence:         0xfffffffd,
			Witness:          [][]byte{{0x01, 0x02}, {0x03}},
		}},
		TxOut: []*TxOut{{
			Value:    25_000,
			PkScript: append([]byte{0x00, 0x14}, make([]byte, 20)...),
		}},
		LockTime: 500_000,
	}
	require.True(t, tx.HasWitness())

	raw := tx.Encode()
	decoded, err := DecodeTransaction(raw)
	require.NoError(t, err)

	assert.Equal(t, raw, decoded.Encode())
	require.Len(t, decoded.TxIn, 1)
	assert.Equal(t, tx.TxIn[0].Witness, decoded.TxIn[0].Witness)

	// The txid covers the stripped form only.
	assert.Equal(t, tx.EncodeStripped(), decoded.EncodeStripped())
	assert.Less(t, tx.SerializeSizeStripped(), tx.SerializeSize())
	assert.Equal(t, tx.TxID(), decoded.TxID())
}

func TestTransactionRoundTripEmpty(t *testing.T) {
	// A transaction template with no inputs and no outputs is legal in
	// documents still under construction.
	tx := &Transaction{Version: 2}

	raw := tx.Encode()
	require.Equal(t, []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, raw)

	decoded, err := DecodeTransaction(raw)
	require.NoError(t, err)
	assert.Empty(t, decoded.TxIn)
	assert.Empty(t, decoded.TxOut)
	assert.Equal(t, raw, decoded.Encode())
}

func TestDecodeTransactionMalformed(t *testing.T) {
	valid, err := hex.DecodeString(genesisCoinbaseHex)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"version only", []byte{0x01, 0x00, 0x00, 0x00}},
		{"truncated", valid[:len(valid)-5]},
		{"trailing byte", append(append([]byte(nil), valid...), 0x00)},
		{"absurd input count", []byte{0x01, 0x00, 0x00, 0x00, 0xfe, 0xff, 0xff, 0xff, 0xff}},
		// Marker and flag with a real input count of zero: nothing for the
		// witness section to describe, and re-encoding could never
		// reproduce the marker.
		{"segwit zero inputs", []byte{
			0x02, 0x00, 0x00, 0x00, // version
			0x00, 0x01, // marker, flag
			0x00,                   // input count
			0x00,                   // output count
			0x00, 0x00, 0x00, 0x00, // locktime
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTransaction(tt.data)
			require.Error(t, err)
		})
	}
}
