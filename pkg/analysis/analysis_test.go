package analysis

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/psbt-scan/pkg/psbt"
	"github.com/suffix-labs/psbt-scan/pkg/wire"
)

const (
	pubKeyG  = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	pubKey2G = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func p2wpkhScript(fill byte) []byte {
	script := make([]byte, 22)
	script[0] = 0x00
	script[1] = 0x14
	for i := 2; i < 22; i++ {
		script[i] = fill
	}
	return script
}

// spendDoc builds a v0 document spending one 30,000 sat P2WPKH output to a
// 25,000 sat P2WPKH output, with matching wallet origins on the input and
// the output.
func spendDoc(t *testing.T) *psbt.Psbt {
	t.Helper()

	unsigned := &wire.Transaction{
		Version: 2,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0},
			Sequence:         0xfffffffd,
		}},
		TxOut: []*wire.TxOut{{Value: 25_000, PkScript: p2wpkhScript(0xbb)}},
	}

	return &psbt.Psbt{
		Global: &psbt.GlobalV0{UnsignedTx: unsigned},
		Inputs: []psbt.Input{{
			WitnessUtxo: &wire.TxOut{Value: 30_000, PkScript: p2wpkhScript(0xaa)},
			Bip32Derivations: []psbt.Bip32Derivation{{
				PubKey:            hexBytes(t, pubKeyG),
				MasterFingerprint: [4]byte{0xde, 0xad, 0xbe, 0xef},
				Path:              []uint32{0x80000054, 0x80000000, 0x80000000, 0, 0},
			}},
		}},
		Outputs: []psbt.Output{{
			Bip32Derivations: []psbt.Bip32Derivation{{
				PubKey:            hexBytes(t, pubKey2G),
				MasterFingerprint: [4]byte{0xde, 0xad, 0xbe, 0xef},
				Path:              []uint32{0x80000054, 0x80000000, 0x80000000, 1, 0},
			}},
		}},
	}
}

func TestAnalyzeSingleInputSpend(t *testing.T) {
	res, err := Analyze(spendDoc(t))
	require.NoError(t, err)

	assert.Equal(t, uint32(0), res.Version)
	assert.Equal(t, StageUpdater, res.Stage)

	require.Len(t, res.Inputs, 1)
	in := res.Inputs[0]
	require.NotNil(t, in.Amount)
	assert.Equal(t, uint64(30_000), *in.Amount)
	assert.Equal(t, ScriptP2WPKH, in.ScriptType)
	assert.True(t, in.HasWitnessUtxo)
	assert.False(t, in.Finalized)

	require.Len(t, res.Outputs, 1)
	out := res.Outputs[0]
	assert.Equal(t, uint64(25_000), out.Amount)
	assert.Equal(t, ScriptP2WPKH, out.ScriptType)
	assert.True(t, out.Change)

	require.NotNil(t, res.TotalIn)
	assert.Equal(t, uint64(30_000), *res.TotalIn)
	assert.Equal(t, uint64(25_000), res.TotalOut)
	require.NotNil(t, res.Fee)
	assert.Equal(t, uint64(5_000), *res.Fee)

	// One unsigned P2WPKH input and one P2WPKH output: 82 vbytes, so 5,000
	// sats works out to roughly 61 sat/vB.
	assert.Equal(t, 82, res.VSize)
	require.NotNil(t, res.FeeRate)
	assert.Equal(t, uint64(61), *res.FeeRate)
}

func TestAnalyzeUnresolvedInputAmount(t *testing.T) {
	doc := spendDoc(t)
	doc.Inputs[0].WitnessUtxo = nil

	res, err := Analyze(doc)
	require.NoError(t, err)

	assert.Nil(t, res.Inputs[0].Amount)
	assert.Equal(t, ScriptUnknown, res.Inputs[0].ScriptType)
	assert.Nil(t, res.TotalIn)
	assert.Nil(t, res.Fee)
	assert.Nil(t, res.FeeRate)
	assert.Equal(t, uint64(25_000), res.TotalOut)
}

func TestAnalyzeNonWitnessUtxoAmount(t *testing.T) {
	doc := spendDoc(t)
	doc.Inputs[0].WitnessUtxo = nil
	doc.Inputs[0].NonWitnessUtxo = &wire.Transaction{
		Version: 1,
		TxOut:   []*wire.TxOut{{Value: 30_000, PkScript: p2wpkhScript(0xaa)}},
	}

	res, err := Analyze(doc)
	require.NoError(t, err)
	require.NotNil(t, res.Inputs[0].Amount)
	assert.Equal(t, uint64(30_000), *res.Inputs[0].Amount)
	assert.Equal(t, ScriptP2WPKH, res.Inputs[0].ScriptType)
}

func TestAnalyzeOutputIndexOutOfRange(t *testing.T) {
	doc := spendDoc(t)
	doc.Inputs[0].WitnessUtxo = nil
	doc.Inputs[0].NonWitnessUtxo = &wire.Transaction{
		Version: 1,
		TxOut:   []*wire.TxOut{{Value: 30_000, PkScript: p2wpkhScript(0xaa)}},
	}
	doc.Global.(*psbt.GlobalV0).UnsignedTx.TxIn[0].PreviousOutPoint.Index = 5

	_, err := Analyze(doc)
	var docErr *psbt.MalformedDocumentError
	require.ErrorAs(t, err, &docErr)
}

func TestAnalyzeNegativeFee(t *testing.T) {
	doc := spendDoc(t)
	doc.Inputs[0].WitnessUtxo.Value = 20_000

	_, err := Analyze(doc)
	var feeErr *NegativeFeeError
	require.ErrorAs(t, err, &feeErr)
	assert.Equal(t, uint64(20_000), feeErr.TotalIn)
	assert.Equal(t, uint64(25_000), feeErr.TotalOut)
}

func TestAnalyzeAmountOverflow(t *testing.T) {
	doc := spendDoc(t)
	doc.Global.(*psbt.GlobalV0).UnsignedTx.TxIn = append(
		doc.Global.(*psbt.GlobalV0).UnsignedTx.TxIn,
		&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 1}, Sequence: 0xffffffff})
	doc.Inputs[0].WitnessUtxo.Value = math.MaxUint64
	doc.Inputs = append(doc.Inputs, psbt.Input{
		WitnessUtxo: &wire.TxOut{Value: math.MaxUint64, PkScript: p2wpkhScript(0xcc)},
	})

	_, err := Analyze(doc)
	var overflowErr *AmountOverflowError
	require.ErrorAs(t, err, &overflowErr)
	assert.Equal(t, "input", overflowErr.Side)
}

func TestAnalyzeNoChangeAcrossWallets(t *testing.T) {
	doc := spendDoc(t)
	doc.Outputs[0].Bip32Derivations[0].MasterFingerprint = [4]byte{1, 2, 3, 4}

	res, err := Analyze(doc)
	require.NoError(t, err)
	assert.False(t, res.Outputs[0].Change)
}

func TestAnalyzeNoChangeOnDifferentAccount(t *testing.T) {
	doc := spendDoc(t)
	doc.Outputs[0].Bip32Derivations[0].Path = []uint32{0x80000054, 0x80000000, 0x80000001, 1, 0}

	res, err := Analyze(doc)
	require.NoError(t, err)
	assert.False(t, res.Outputs[0].Change)
}

func TestAnalyzeAtMostOneChangeFlag(t *testing.T) {
	doc := spendDoc(t)
	doc.Global.(*psbt.GlobalV0).UnsignedTx.TxOut = append(
		doc.Global.(*psbt.GlobalV0).UnsignedTx.TxOut,
		&wire.TxOut{Value: 1_000, PkScript: p2wpkhScript(0xcc)})
	doc.Outputs = append(doc.Outputs, psbt.Output{
		Bip32Derivations: []psbt.Bip32Derivation{{
			PubKey:            hexBytes(t, pubKeyG),
			MasterFingerprint: [4]byte{0xde, 0xad, 0xbe, 0xef},
			Path:              []uint32{0x80000054, 0x80000000, 0x80000000, 1, 1},
		}},
	})

	res, err := Analyze(doc)
	require.NoError(t, err)
	assert.True(t, res.Outputs[0].Change)
	assert.False(t, res.Outputs[1].Change)
	require.NotNil(t, res.ChangeIndex)
	assert.Equal(t, 0, *res.ChangeIndex)
}

func TestRoundedFeeRate(t *testing.T) {
	tests := []struct {
		fee   uint64
		vsize int
		want  uint64
	}{
		{5_000, 82, 61},
		{10, 4, 3},  // 2.5 rounds up
		{3, 2, 2},   // 1.5 rounds up
		{1, 3, 0},   // 0.33 rounds down
		{100, 100, 1},
		// Extreme fees stay exact instead of wrapping.
		{math.MaxUint64, 2, 1 << 63},
		{math.MaxUint64, 1, math.MaxUint64},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundedFeeRate(tt.fee, tt.vsize),
			"fee %d vsize %d", tt.fee, tt.vsize)
	}
}

func TestDetectStage(t *testing.T) {
	bare := spendDoc(t)
	bare.Inputs[0].WitnessUtxo = nil
	bare.Inputs[0].Bip32Derivations = nil
	bare.Outputs[0].Bip32Derivations = nil
	assert.Equal(t, StageCreator, DetectStage(bare))

	updating := spendDoc(t)
	assert.Equal(t, StageUpdater, DetectStage(updating))

	signing := spendDoc(t)
	signing.Inputs[0].PartialSigs = []psbt.PartialSig{{
		PubKey: hexBytes(t, pubKeyG), Signature: []byte{0x01},
	}}
	assert.Equal(t, StageSigner, DetectStage(signing))

	final := spendDoc(t)
	final.Inputs[0].FinalScriptWitness = []byte{0x02, 0x01, 0x01, 0x01, 0x02}
	assert.Equal(t, StageExtractionReady, DetectStage(final))
}

func TestDetectStageV2(t *testing.T) {
	created := &psbt.Psbt{Global: &psbt.GlobalV2{TxVersion: 2}}
	assert.Equal(t, StageCreator, DetectStage(created))

	vout := uint32(0)
	constructed := &psbt.Psbt{
		Global: &psbt.GlobalV2{TxVersion: 2, NumInputs: 1, NumOutputs: 0},
		Inputs: []psbt.Input{{OutputIndex: &vout}},
	}
	assert.Equal(t, StageConstructor, DetectStage(constructed))
}

func TestEstimateSizeWithFinalWitness(t *testing.T) {
	doc := spendDoc(t)
	res, err := Analyze(doc)
	require.NoError(t, err)
	unsignedVSize := res.VSize

	// A finalized P2WPKH input adds its witness at a quarter weight.
	doc.Inputs[0].FinalScriptWitness = append([]byte{0x02, 0x47},
		append(make([]byte, 0x47), append([]byte{0x21}, make([]byte, 0x21)...)...)...)

	res, err = Analyze(doc)
	require.NoError(t, err)
	assert.Greater(t, res.VSize, unsignedVSize)
	assert.Equal(t, res.Weight, 4*82+2+len(doc.Inputs[0].FinalScriptWitness))
}
