package psbt

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/suffix-labs/psbt-scan/pkg/wire"
)

// magicBytes is the 5-byte PSBT preamble: "psbt" followed by 0xff.
var magicBytes = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

// rawKV is one key-value record as framed on the wire, before typed
// dispatch. The full key bytes (type discriminant prefix included) are kept
// so unknown records survive verbatim.
type rawKV struct {
	keyType uint64
	keyData []byte
	key     []byte
	value   []byte
}

// ParseHex decodes a hex-encoded PSBT. The string may use either letter case
// and may contain surrounding or embedded whitespace; it must decode to
// valid binary in full before document parsing proceeds.
func ParseHex(s string) (*Psbt, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex encoding: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a binary PSBT document.
//
// The returned document is complete or the error is terminal: no partially
// parsed document is ever returned. Absent-but-legal fields (missing UTXOs,
// missing signatures) parse successfully; structural violations do not.
func Parse(data []byte) (*Psbt, error) {
	r := wire.NewReader(data)

	magic, err := r.ReadBytes(len(magicBytes), "magic")
	if err != nil || !bytes.Equal(magic, magicBytes) {
		return nil, &MagicMismatchError{Got: magic}
	}

	globalKVs, err := readKeyValues(r, "global")
	if err != nil {
		return nil, err
	}
	global, err := decodeGlobal(globalKVs)
	if err != nil {
		return nil, err
	}
	version := global.PsbtVersion()

	// The v2 count fields are attacker-controlled; every declared map costs
	// at least its one-byte separator, so counts beyond the remaining bytes
	// cannot be honest. Checked before any count-sized allocation.
	if g, ok := global.(*GlobalV2); ok {
		remaining := uint64(r.Remaining())
		if g.NumInputs > remaining || g.NumOutputs > remaining ||
			g.NumInputs+g.NumOutputs > remaining {
			return nil, &MalformedDocumentError{Reason: fmt.Sprintf(
				"declared %d inputs and %d outputs cannot fit in %d remaining bytes",
				g.NumInputs, g.NumOutputs, remaining)}
		}
	}

	p := &Psbt{Global: global}

	p.Inputs = make([]Input, 0, global.InputCount())
	for i := 0; i < global.InputCount(); i++ {
		mapName := fmt.Sprintf("input %d", i)
		kvs, err := readKeyValues(r, mapName)
		if err != nil {
			return nil, err
		}
		in, err := decodeInput(kvs, version, mapName)
		if err != nil {
			return nil, err
		}
		p.Inputs = append(p.Inputs, in)
	}

	p.Outputs = make([]Output, 0, global.OutputCount())
	for i := 0; i < global.OutputCount(); i++ {
		mapName := fmt.Sprintf("output %d", i)
		kvs, err := readKeyValues(r, mapName)
		if err != nil {
			return nil, err
		}
		out, err := decodeOutput(kvs, version, mapName)
		if err != nil {
			return nil, err
		}
		p.Outputs = append(p.Outputs, out)
	}

	if r.Remaining() != 0 {
		return nil, &TrailingDataError{Offset: r.Pos(), Length: r.Remaining()}
	}

	if err := checkUtxoTxids(p); err != nil {
		return nil, err
	}

	log.Tracef("Parsed PSBT v%d: %d inputs, %d outputs", version,
		len(p.Inputs), len(p.Outputs))
	return p, nil
}

// readKeyValues reads records until the zero-length-key separator, rejecting
// duplicate full keys along the way.
func readKeyValues(r *wire.Reader, mapName string) ([]rawKV, error) {
	var kvs []rawKV
	seen := make(map[string]struct{})

	for {
		keyLen, err := r.ReadCompactSize("key length")
		if err != nil {
			return nil, &MalformedMapError{Map: mapName, Field: "key length", Cause: err}
		}
		if keyLen == 0 {
			return kvs, nil
		}

		key, err := r.ReadBytes(int(keyLen), "key")
		if err != nil {
			return nil, &MalformedMapError{Map: mapName, Field: "key", Cause: err}
		}

		kr := wire.NewReader(key)
		keyType, err := kr.ReadCompactSize("key type")
		if err != nil {
			return nil, &MalformedMapError{Map: mapName, Field: "key type", Cause: err}
		}
		keyData := key[kr.Pos():]

		valueLen, err := r.ReadCompactSize("value length")
		if err != nil {
			return nil, &MalformedMapError{Map: mapName, Field: "value length", Cause: err}
		}
		value, err := r.ReadBytes(int(valueLen), "value")
		if err != nil {
			return nil, &MalformedMapError{Map: mapName, Field: "value", Cause: err}
		}

		if _, dup := seen[string(key)]; dup {
			return nil, &DuplicateKeyError{Map: mapName, Key: key}
		}
		seen[string(key)] = struct{}{}

		kvs = append(kvs, rawKV{keyType: keyType, keyData: keyData, key: key, value: value})
	}
}

// decodeGlobal resolves the document version and dispatches to the matching
// global map shape. An explicit PSBT_GLOBAL_VERSION equal to 2 selects v2;
// any other explicit value is unsupported; absence implies v0.
func decodeGlobal(kvs []rawKV) (GlobalMap, error) {
	var explicit *uint32
	for _, kv := range kvs {
		if kv.keyType != GlobalVersion {
			continue
		}
		if err := requireEmptyKeyData("global", "version", kv); err != nil {
			return nil, err
		}
		v, err := leUint32("global", "version", kv.value)
		if err != nil {
			return nil, err
		}
		explicit = &v
	}

	if explicit == nil {
		return decodeGlobalV0(kvs)
	}
	if *explicit != 2 {
		return nil, &UnsupportedVersionError{Version: *explicit}
	}
	return decodeGlobalV2(kvs)
}

func decodeGlobalV0(kvs []rawKV) (*GlobalV0, error) {
	g := &GlobalV0{}

	for _, kv := range kvs {
		switch kv.keyType {
		case GlobalUnsignedTx:
			if err := requireEmptyKeyData("global", "unsigned transaction", kv); err != nil {
				return nil, err
			}
			tx, err := wire.DecodeTransaction(kv.value)
			if err != nil {
				return nil, &MalformedMapError{Map: "global", Field: "unsigned transaction", Cause: err}
			}
			for i, in := range tx.TxIn {
				if len(in.SignatureScript) != 0 || in.Witness != nil {
					return nil, &MalformedDocumentError{Reason: fmt.Sprintf(
						"embedded transaction input %d carries scriptSig or witness data", i)}
				}
			}
			g.UnsignedTx = tx

		case GlobalXpub:
			xpub, err := decodeXpub("global", kv)
			if err != nil {
				return nil, err
			}
			g.Xpubs = append(g.Xpubs, xpub)

		case GlobalTxVersion, GlobalFallbackLocktime, GlobalInputCount,
			GlobalOutputCount, GlobalTxModifiable:
			return nil, &MalformedDocumentError{Reason: fmt.Sprintf(
				"v2 global field 0x%02x in a v0 document", kv.keyType)}

		case GlobalProprietary:
			g.Proprietary = append(g.Proprietary, KeyValue{Key: kv.key, Value: kv.value})

		default:
			g.Unknown = append(g.Unknown, KeyValue{Key: kv.key, Value: kv.value})
		}
	}

	if g.UnsignedTx == nil {
		return nil, &MalformedDocumentError{Reason: "v0 document missing the unsigned transaction"}
	}
	return g, nil
}

func decodeGlobalV2(kvs []rawKV) (*GlobalV2, error) {
	g := &GlobalV2{}
	var haveTxVersion, haveInputCount, haveOutputCount bool

	for _, kv := range kvs {
		switch kv.keyType {
		case GlobalUnsignedTx:
			return nil, &MalformedDocumentError{
				Reason: "embedded unsigned transaction in a v2 document"}

		case GlobalTxVersion:
			if err := requireEmptyKeyData("global", "tx version", kv); err != nil {
				return nil, err
			}
			v, err := leUint32("global", "tx version", kv.value)
			if err != nil {
				return nil, err
			}
			g.TxVersion = int32(v)
			haveTxVersion = true

		case GlobalFallbackLocktime:
			if err := requireEmptyKeyData("global", "fallback locktime", kv); err != nil {
				return nil, err
			}
			v, err := leUint32("global", "fallback locktime", kv.value)
			if err != nil {
				return nil, err
			}
			g.FallbackLocktime = &v

		case GlobalInputCount:
			n, err := compactSizeValue("global", "input count", kv)
			if err != nil {
				return nil, err
			}
			g.NumInputs = n
			haveInputCount = true

		case GlobalOutputCount:
			n, err := compactSizeValue("global", "output count", kv)
			if err != nil {
				return nil, err
			}
			g.NumOutputs = n
			haveOutputCount = true

		case GlobalTxModifiable:
			if err := requireEmptyKeyData("global", "tx modifiable", kv); err != nil {
				return nil, err
			}
			if len(kv.value) != 1 {
				return nil, &MalformedMapError{Map: "global", Field: "tx modifiable flags"}
			}
			flags := kv.value[0]
			g.TxModifiable = &flags

		case GlobalVersion:
			// Already consumed during version resolution.

		case GlobalXpub:
			xpub, err := decodeXpub("global", kv)
			if err != nil {
				return nil, err
			}
			g.Xpubs = append(g.Xpubs, xpub)

		case GlobalProprietary:
			g.Proprietary = append(g.Proprietary, KeyValue{Key: kv.key, Value: kv.value})

		default:
			g.Unknown = append(g.Unknown, KeyValue{Key: kv.key, Value: kv.value})
		}
	}

	if !haveTxVersion {
		return nil, &MalformedDocumentError{Reason: "v2 document missing the transaction version"}
	}
	if !haveInputCount || !haveOutputCount {
		return nil, &MalformedDocumentError{Reason: "v2 document missing input or output count"}
	}
	return g, nil
}

// isV2InputField reports whether the key type is defined only for v2 input
// maps. In a v0 document these types are not in the dispatch table and the
// records are preserved as unknown.
func isV2InputField(keyType uint64) bool {
	return keyType >= InPreviousTxid && keyType <= InRequiredHeightLocktime
}

func decodeInput(kvs []rawKV, version uint32, mapName string) (Input, error) {
	var in Input

	for _, kv := range kvs {
		if version == 0 && isV2InputField(kv.keyType) {
			in.Unknown = append(in.Unknown, KeyValue{Key: kv.key, Value: kv.value})
			continue
		}

		switch kv.keyType {
		case InNonWitnessUtxo:
			if err := requireEmptyKeyData(mapName, "non-witness utxo", kv); err != nil {
				return Input{}, err
			}
			tx, err := wire.DecodeTransaction(kv.value)
			if err != nil {
				return Input{}, &MalformedMapError{Map: mapName, Field: "non-witness utxo", Cause: err}
			}
			in.NonWitnessUtxo = tx

		case InWitnessUtxo:
			if err := requireEmptyKeyData(mapName, "witness utxo", kv); err != nil {
				return Input{}, err
			}
			out, err := decodeTxOutValue(mapName, kv.value)
			if err != nil {
				return Input{}, err
			}
			in.WitnessUtxo = out

		case InPartialSig:
			if _, err := secp256k1.ParsePubKey(kv.keyData); err != nil {
				return Input{}, &MalformedMapError{
					Map: mapName, Field: "partial signature public key", Cause: err}
			}
			in.PartialSigs = append(in.PartialSigs, PartialSig{
				PubKey:    kv.keyData,
				Signature: kv.value,
			})

		case InSighashType:
			if err := requireEmptyKeyData(mapName, "sighash type", kv); err != nil {
				return Input{}, err
			}
			v, err := leUint32(mapName, "sighash type", kv.value)
			if err != nil {
				return Input{}, err
			}
			in.SighashType = &v

		case InRedeemScript:
			if err := requireEmptyKeyData(mapName, "redeem script", kv); err != nil {
				return Input{}, err
			}
			in.RedeemScript = kv.value

		case InWitnessScript:
			if err := requireEmptyKeyData(mapName, "witness script", kv); err != nil {
				return Input{}, err
			}
			in.WitnessScript = kv.value

		case InBip32Derivation:
			deriv, err := decodeBip32Derivation(mapName, kv)
			if err != nil {
				return Input{}, err
			}
			in.Bip32Derivations = append(in.Bip32Derivations, deriv)

		case InFinalScriptSig:
			if err := requireEmptyKeyData(mapName, "final scriptSig", kv); err != nil {
				return Input{}, err
			}
			in.FinalScriptSig = kv.value

		case InFinalScriptWitness:
			if err := requireEmptyKeyData(mapName, "final script witness", kv); err != nil {
				return Input{}, err
			}
			in.FinalScriptWitness = kv.value

		case InPreviousTxid:
			if err := requireEmptyKeyData(mapName, "previous txid", kv); err != nil {
				return Input{}, err
			}
			if len(kv.value) != chainhash.HashSize {
				return Input{}, &MalformedMapError{Map: mapName, Field: "previous txid"}
			}
			var h chainhash.Hash
			copy(h[:], kv.value)
			in.PreviousTxid = &h

		case InOutputIndex:
			v, err := inputUint32Field(mapName, "output index", kv)
			if err != nil {
				return Input{}, err
			}
			in.OutputIndex = v

		case InSequence:
			v, err := inputUint32Field(mapName, "sequence", kv)
			if err != nil {
				return Input{}, err
			}
			in.Sequence = v

		case InRequiredTimeLocktime:
			v, err := inputUint32Field(mapName, "required time locktime", kv)
			if err != nil {
				return Input{}, err
			}
			in.RequiredTimeLocktime = v

		case InRequiredHeightLocktime:
			v, err := inputUint32Field(mapName, "required height locktime", kv)
			if err != nil {
				return Input{}, err
			}
			in.RequiredHeightLocktime = v

		case InProprietary:
			in.Proprietary = append(in.Proprietary, KeyValue{Key: kv.key, Value: kv.value})

		default:
			in.Unknown = append(in.Unknown, KeyValue{Key: kv.key, Value: kv.value})
		}
	}

	if version == 2 {
		if in.PreviousTxid == nil {
			return Input{}, &MalformedDocumentError{Reason: mapName + " missing previous txid"}
		}
		if in.OutputIndex == nil {
			return Input{}, &MalformedDocumentError{Reason: mapName + " missing output index"}
		}
	}
	return in, nil
}

func decodeOutput(kvs []rawKV, version uint32, mapName string) (Output, error) {
	var out Output

	for _, kv := range kvs {
		if version == 0 && (kv.keyType == OutAmount || kv.keyType == OutScript) {
			out.Unknown = append(out.Unknown, KeyValue{Key: kv.key, Value: kv.value})
			continue
		}

		switch kv.keyType {
		case OutRedeemScript:
			if err := requireEmptyKeyData(mapName, "redeem script", kv); err != nil {
				return Output{}, err
			}
			out.RedeemScript = kv.value

		case OutWitnessScript:
			if err := requireEmptyKeyData(mapName, "witness script", kv); err != nil {
				return Output{}, err
			}
			out.WitnessScript = kv.value

		case OutBip32Derivation:
			deriv, err := decodeBip32Derivation(mapName, kv)
			if err != nil {
				return Output{}, err
			}
			out.Bip32Derivations = append(out.Bip32Derivations, deriv)

		case OutAmount:
			if err := requireEmptyKeyData(mapName, "amount", kv); err != nil {
				return Output{}, err
			}
			if len(kv.value) != 8 {
				return Output{}, &MalformedMapError{Map: mapName, Field: "amount"}
			}
			v := uint64(kv.value[0]) | uint64(kv.value[1])<<8 | uint64(kv.value[2])<<16 |
				uint64(kv.value[3])<<24 | uint64(kv.value[4])<<32 | uint64(kv.value[5])<<40 |
				uint64(kv.value[6])<<48 | uint64(kv.value[7])<<56
			out.Amount = &v

		case OutScript:
			if err := requireEmptyKeyData(mapName, "script", kv); err != nil {
				return Output{}, err
			}
			out.Script = kv.value

		case OutProprietary:
			out.Proprietary = append(out.Proprietary, KeyValue{Key: kv.key, Value: kv.value})

		default:
			out.Unknown = append(out.Unknown, KeyValue{Key: kv.key, Value: kv.value})
		}
	}

	if version == 2 {
		if out.Amount == nil {
			return Output{}, &MalformedDocumentError{Reason: mapName + " missing amount"}
		}
		if out.Script == nil {
			return Output{}, &MalformedDocumentError{Reason: mapName + " missing script"}
		}
	}
	return out, nil
}

// checkUtxoTxids cross-checks each non-witness UTXO against the previous
// txid the input claims to spend: the UTXO transaction's id must match.
func checkUtxoTxids(p *Psbt) error {
	for i := range p.Inputs {
		in := &p.Inputs[i]
		if in.NonWitnessUtxo == nil {
			continue
		}

		var claimed *chainhash.Hash
		switch g := p.Global.(type) {
		case *GlobalV0:
			claimed = &g.UnsignedTx.TxIn[i].PreviousOutPoint.Hash
		case *GlobalV2:
			claimed = in.PreviousTxid
		}
		if claimed == nil {
			continue
		}

		if actual := in.NonWitnessUtxo.TxID(); actual != *claimed {
			return &MalformedDocumentError{Reason: fmt.Sprintf(
				"input %d non-witness utxo txid %s does not match previous txid %s",
				i, actual, claimed)}
		}
	}
	return nil
}

func decodeXpub(mapName string, kv rawKV) (Xpub, error) {
	const xpubLen = 78
	if len(kv.keyData) != xpubLen {
		return Xpub{}, &MalformedMapError{Map: mapName, Field: "extended public key"}
	}

	fingerprint, path, err := decodeKeySource(mapName, "extended public key origin", kv.value)
	if err != nil {
		return Xpub{}, err
	}
	return Xpub{
		ExtendedKey:       kv.keyData,
		MasterFingerprint: fingerprint,
		Path:              path,
	}, nil
}

func decodeBip32Derivation(mapName string, kv rawKV) (Bip32Derivation, error) {
	if len(kv.keyData) != 33 && len(kv.keyData) != 65 {
		return Bip32Derivation{}, &MalformedMapError{
			Map: mapName, Field: "bip32 derivation public key"}
	}

	fingerprint, path, err := decodeKeySource(mapName, "bip32 derivation", kv.value)
	if err != nil {
		return Bip32Derivation{}, err
	}
	return Bip32Derivation{
		PubKey:            kv.keyData,
		MasterFingerprint: fingerprint,
		Path:              path,
	}, nil
}

// decodeKeySource decodes a 4-byte master fingerprint followed by a sequence
// of 32-bit little-endian path components.
func decodeKeySource(mapName, field string, value []byte) ([4]byte, []uint32, error) {
	var fingerprint [4]byte
	if len(value) < 4 || (len(value)-4)%4 != 0 {
		return fingerprint, nil, &MalformedMapError{Map: mapName, Field: field}
	}
	copy(fingerprint[:], value[:4])

	r := wire.NewReader(value[4:])
	path := make([]uint32, 0, r.Remaining()/4)
	for r.Remaining() > 0 {
		component, err := r.ReadUint32(field)
		if err != nil {
			return fingerprint, nil, &MalformedMapError{Map: mapName, Field: field, Cause: err}
		}
		path = append(path, component)
	}
	return fingerprint, path, nil
}

// decodeTxOutValue decodes a witness UTXO value: amount plus a compact-size
// prefixed scriptPubKey, with nothing left over.
func decodeTxOutValue(mapName string, value []byte) (*wire.TxOut, error) {
	r := wire.NewReader(value)

	amount, err := r.ReadUint64("witness utxo amount")
	if err != nil {
		return nil, &MalformedMapError{Map: mapName, Field: "witness utxo amount", Cause: err}
	}
	scriptLen, err := r.ReadCompactSize("witness utxo script length")
	if err != nil {
		return nil, &MalformedMapError{Map: mapName, Field: "witness utxo script length", Cause: err}
	}
	script, err := r.ReadBytes(int(scriptLen), "witness utxo script")
	if err != nil {
		return nil, &MalformedMapError{Map: mapName, Field: "witness utxo script", Cause: err}
	}
	if r.Remaining() != 0 {
		return nil, &MalformedMapError{Map: mapName, Field: "witness utxo trailing bytes"}
	}

	return &wire.TxOut{Value: amount, PkScript: script}, nil
}

func requireEmptyKeyData(mapName, field string, kv rawKV) error {
	if len(kv.keyData) != 0 {
		return &MalformedMapError{Map: mapName, Field: field + " unexpected key data"}
	}
	return nil
}

func leUint32(mapName, field string, value []byte) (uint32, error) {
	if len(value) != 4 {
		return 0, &MalformedMapError{Map: mapName, Field: field}
	}
	return uint32(value[0]) | uint32(value[1])<<8 | uint32(value[2])<<16 | uint32(value[3])<<24, nil
}

func inputUint32Field(mapName, field string, kv rawKV) (*uint32, error) {
	if err := requireEmptyKeyData(mapName, field, kv); err != nil {
		return nil, err
	}
	v, err := leUint32(mapName, field, kv.value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// compactSizeValue decodes a value that is itself a single compact size
// integer, as the v2 count fields are.
func compactSizeValue(mapName, field string, kv rawKV) (uint64, error) {
	if err := requireEmptyKeyData(mapName, field, kv); err != nil {
		return 0, err
	}
	r := wire.NewReader(kv.value)
	n, err := r.ReadCompactSize(field)
	if err != nil {
		return 0, &MalformedMapError{Map: mapName, Field: field, Cause: err}
	}
	if r.Remaining() != 0 {
		return 0, &MalformedMapError{Map: mapName, Field: field + " trailing bytes"}
	}
	return n, nil
}
