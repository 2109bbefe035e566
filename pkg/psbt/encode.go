package psbt

import (
	"bytes"

	"github.com/suffix-labs/psbt-scan/pkg/wire"
)

// Serialize encodes the document back to binary PSBT form. Typed fields are
// written in ascending key-type order, followed by proprietary and unknown
// records in their preserved order, so a parse/serialize round trip of a
// well-ordered document is byte identical.
func Serialize(p *Psbt) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Write(magicBytes)

	switch g := p.Global.(type) {
	case *GlobalV0:
		if err := writeGlobalV0(buf, g); err != nil {
			return nil, err
		}
	case *GlobalV2:
		writeGlobalV2(buf, g)
	default:
		return nil, &MalformedDocumentError{Reason: "document has no global map"}
	}

	for i := range p.Inputs {
		writeInput(buf, &p.Inputs[i])
	}
	for i := range p.Outputs {
		writeOutput(buf, &p.Outputs[i])
	}
	return buf.Bytes(), nil
}

func writeGlobalV0(buf *bytes.Buffer, g *GlobalV0) error {
	if g.UnsignedTx == nil {
		return &MalformedDocumentError{Reason: "v0 document missing the unsigned transaction"}
	}
	writeKV(buf, GlobalUnsignedTx, nil, g.UnsignedTx.Encode())
	for _, xpub := range g.Xpubs {
		writeKV(buf, GlobalXpub, xpub.ExtendedKey, encodeKeySource(xpub.MasterFingerprint, xpub.Path))
	}
	writeRawKVs(buf, g.Proprietary)
	writeRawKVs(buf, g.Unknown)
	buf.WriteByte(0x00)
	return nil
}

func writeGlobalV2(buf *bytes.Buffer, g *GlobalV2) {
	for _, xpub := range g.Xpubs {
		writeKV(buf, GlobalXpub, xpub.ExtendedKey, encodeKeySource(xpub.MasterFingerprint, xpub.Path))
	}
	writeKV(buf, GlobalTxVersion, nil, leUint32Bytes(uint32(g.TxVersion)))
	if g.FallbackLocktime != nil {
		writeKV(buf, GlobalFallbackLocktime, nil, leUint32Bytes(*g.FallbackLocktime))
	}
	writeKV(buf, GlobalInputCount, nil, compactSizeBytes(g.NumInputs))
	writeKV(buf, GlobalOutputCount, nil, compactSizeBytes(g.NumOutputs))
	if g.TxModifiable != nil {
		writeKV(buf, GlobalTxModifiable, nil, []byte{*g.TxModifiable})
	}
	writeKV(buf, GlobalVersion, nil, leUint32Bytes(2))
	writeRawKVs(buf, g.Proprietary)
	writeRawKVs(buf, g.Unknown)
	buf.WriteByte(0x00)
}

func writeInput(buf *bytes.Buffer, in *Input) {
	if in.NonWitnessUtxo != nil {
		writeKV(buf, InNonWitnessUtxo, nil, in.NonWitnessUtxo.Encode())
	}
	if in.WitnessUtxo != nil {
		writeKV(buf, InWitnessUtxo, nil, encodeTxOutValue(in.WitnessUtxo))
	}
	for _, sig := range in.PartialSigs {
		writeKV(buf, InPartialSig, sig.PubKey, sig.Signature)
	}
	if in.SighashType != nil {
		writeKV(buf, InSighashType, nil, leUint32Bytes(*in.SighashType))
	}
	if len(in.RedeemScript) != 0 {
		writeKV(buf, InRedeemScript, nil, in.RedeemScript)
	}
	if len(in.WitnessScript) != 0 {
		writeKV(buf, InWitnessScript, nil, in.WitnessScript)
	}
	for _, deriv := range in.Bip32Derivations {
		writeKV(buf, InBip32Derivation, deriv.PubKey,
			encodeKeySource(deriv.MasterFingerprint, deriv.Path))
	}
	if len(in.FinalScriptSig) != 0 {
		writeKV(buf, InFinalScriptSig, nil, in.FinalScriptSig)
	}
	if len(in.FinalScriptWitness) != 0 {
		writeKV(buf, InFinalScriptWitness, nil, in.FinalScriptWitness)
	}
	if in.PreviousTxid != nil {
		writeKV(buf, InPreviousTxid, nil, in.PreviousTxid[:])
	}
	if in.OutputIndex != nil {
		writeKV(buf, InOutputIndex, nil, leUint32Bytes(*in.OutputIndex))
	}
	if in.Sequence != nil {
		writeKV(buf, InSequence, nil, leUint32Bytes(*in.Sequence))
	}
	if in.RequiredTimeLocktime != nil {
		writeKV(buf, InRequiredTimeLocktime, nil, leUint32Bytes(*in.RequiredTimeLocktime))
	}
	if in.RequiredHeightLocktime != nil {
		writeKV(buf, InRequiredHeightLocktime, nil, leUint32Bytes(*in.RequiredHeightLocktime))
	}
	writeRawKVs(buf, in.Proprietary)
	writeRawKVs(buf, in.Unknown)
	buf.WriteByte(0x00)
}

func writeOutput(buf *bytes.Buffer, out *Output) {
	if len(out.RedeemScript) != 0 {
		writeKV(buf, OutRedeemScript, nil, out.RedeemScript)
	}
	if len(out.WitnessScript) != 0 {
		writeKV(buf, OutWitnessScript, nil, out.WitnessScript)
	}
	for _, deriv := range out.Bip32Derivations {
		writeKV(buf, OutBip32Derivation, deriv.PubKey,
			encodeKeySource(deriv.MasterFingerprint, deriv.Path))
	}
	if out.Amount != nil {
		v := *out.Amount
		writeKV(buf, OutAmount, nil, []byte{
			byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
			byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
		})
	}
	if out.Script != nil {
		writeKV(buf, OutScript, nil, out.Script)
	}
	writeRawKVs(buf, out.Proprietary)
	writeRawKVs(buf, out.Unknown)
	buf.WriteByte(0x00)
}

// writeKV frames one record: compact-size key length, key (type discriminant
// plus key data), compact-size value length, value.
func writeKV(buf *bytes.Buffer, keyType uint64, keyData, value []byte) {
	keyLen := wire.CompactSizeLen(keyType) + len(keyData)
	wire.WriteCompactSize(buf, uint64(keyLen))
	wire.WriteCompactSize(buf, keyType)
	buf.Write(keyData)
	wire.WriteCompactSize(buf, uint64(len(value)))
	buf.Write(value)
}

func writeRawKVs(buf *bytes.Buffer, kvs []KeyValue) {
	for _, kv := range kvs {
		wire.WriteCompactSize(buf, uint64(len(kv.Key)))
		buf.Write(kv.Key)
		wire.WriteCompactSize(buf, uint64(len(kv.Value)))
		buf.Write(kv.Value)
	}
}

func encodeKeySource(fingerprint [4]byte, path []uint32) []byte {
	out := make([]byte, 4, 4+4*len(path))
	copy(out, fingerprint[:])
	for _, component := range path {
		out = append(out, byte(component), byte(component>>8),
			byte(component>>16), byte(component>>24))
	}
	return out
}

func encodeTxOutValue(out *wire.TxOut) []byte {
	buf := &bytes.Buffer{}
	v := out.Value
	buf.Write([]byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	})
	wire.WriteCompactSize(buf, uint64(len(out.PkScript)))
	buf.Write(out.PkScript)
	return buf.Bytes()
}

func leUint32Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func compactSizeBytes(v uint64) []byte {
	buf := &bytes.Buffer{}
	wire.WriteCompactSize(buf, v)
	return buf.Bytes()
}
