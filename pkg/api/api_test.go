package api

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/psbt-scan/pkg/analysis"
	"github.com/suffix-labs/psbt-scan/pkg/psbt"
	"github.com/suffix-labs/psbt-scan/pkg/wire"
)

func sampleDocBytes(t *testing.T) []byte {
	t.Helper()

	unsigned := &wire.Transaction{
		Version: 2,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0},
			Sequence:         0xfffffffd,
		}},
		TxOut: []*wire.TxOut{{
			Value:    25_000,
			PkScript: append([]byte{0x00, 0x14}, make([]byte, 20)...),
		}},
	}
	doc := &psbt.Psbt{
		Global: &psbt.GlobalV0{UnsignedTx: unsigned},
		Inputs: []psbt.Input{{
			WitnessUtxo: &wire.TxOut{
				Value:    30_000,
				PkScript: append([]byte{0x00, 0x14}, make([]byte, 20)...),
			},
		}},
		Outputs: []psbt.Output{{}},
	}

	raw, err := psbt.Serialize(doc)
	require.NoError(t, err)
	return raw
}

func TestDecodeAutodetect(t *testing.T) {
	raw := sampleDocBytes(t)

	fromBinary, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), fromBinary.Version())

	fromHex, err := Decode([]byte(hex.EncodeToString(raw)))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), fromHex.Version())

	_, err = Decode([]byte("not a psbt"))
	require.Error(t, err)
}

func TestDecodeAndAnalyze(t *testing.T) {
	_, res, err := DecodeAndAnalyze(sampleDocBytes(t))
	require.NoError(t, err)

	require.NotNil(t, res.Fee)
	assert.Equal(t, uint64(5_000), *res.Fee)
	assert.Equal(t, analysis.StageUpdater, res.Stage)
}

func TestCombine(t *testing.T) {
	raw := sampleDocBytes(t)

	_, err := Combine(nil)
	require.Error(t, err)

	single, err := Combine([][]byte{raw})
	require.NoError(t, err)
	assert.Equal(t, raw, single)

	// Combining a document with itself changes nothing; mixing binary and
	// hex encodings of the operands is fine.
	merged, err := Combine([][]byte{raw, []byte(hex.EncodeToString(raw))})
	require.NoError(t, err)
	assert.Equal(t, raw, merged)
}
