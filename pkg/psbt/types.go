package psbt

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/suffix-labs/psbt-scan/pkg/wire"
)

// Psbt is a parsed PSBT document: one global map, then one map per input and
// one per output of the underlying transaction. Documents are immutable once
// parsed; Combine returns a new document rather than mutating its operands.
type Psbt struct {
	Global  GlobalMap
	Inputs  []Input
	Outputs []Output
}

// Version returns the PSBT version of the document, 0 or 2.
func (p *Psbt) Version() uint32 {
	return p.Global.PsbtVersion()
}

// GlobalMap is the version-dependent shape of the global map. It is a closed
// sum of GlobalV0 and GlobalV2, so a document can never simultaneously carry
// an embedded unsigned transaction and explicit v2 count fields.
type GlobalMap interface {
	// PsbtVersion returns 0 or 2.
	PsbtVersion() uint32

	// InputCount and OutputCount return the number of input and output maps
	// the document must carry: the embedded transaction's counts for v0, the
	// explicit count fields for v2.
	InputCount() int
	OutputCount() int

	globalMap()
}

// GlobalV0 is the BIP 174 global map, built around the embedded unsigned
// transaction.
type GlobalV0 struct {
	// UnsignedTx is the embedded transaction. Its inputs carry empty
	// scriptSigs and no witness data; the parser enforces this.
	UnsignedTx *wire.Transaction

	Xpubs       []Xpub
	Proprietary []KeyValue
	Unknown     []KeyValue
}

func (g *GlobalV0) PsbtVersion() uint32 { return 0 }
func (g *GlobalV0) InputCount() int     { return len(g.UnsignedTx.TxIn) }
func (g *GlobalV0) OutputCount() int    { return len(g.UnsignedTx.TxOut) }
func (g *GlobalV0) globalMap()          {}

// GlobalV2 is the BIP 370 global map, which replaces the embedded
// transaction with explicit transaction-level fields.
type GlobalV2 struct {
	TxVersion        int32
	FallbackLocktime *uint32
	NumInputs        uint64
	NumOutputs       uint64
	TxModifiable     *uint8

	Xpubs       []Xpub
	Proprietary []KeyValue
	Unknown     []KeyValue
}

func (g *GlobalV2) PsbtVersion() uint32 { return 2 }
func (g *GlobalV2) InputCount() int     { return int(g.NumInputs) }
func (g *GlobalV2) OutputCount() int    { return int(g.NumOutputs) }
func (g *GlobalV2) globalMap()          {}

// Input is the per-input map. Every field except the v2 outpoint fields may
// legitimately be absent at early workflow stages; absence is not an error.
type Input struct {
	NonWitnessUtxo     *wire.Transaction // Full previous transaction
	WitnessUtxo        *wire.TxOut       // Just the output being spent
	PartialSigs        []PartialSig
	SighashType        *uint32
	RedeemScript       []byte
	WitnessScript      []byte
	Bip32Derivations   []Bip32Derivation
	FinalScriptSig     []byte
	FinalScriptWitness []byte // Serialized witness stack, kept verbatim

	// v2 only. PreviousTxid and OutputIndex are mandatory in v2 input maps.
	PreviousTxid           *chainhash.Hash
	OutputIndex            *uint32
	Sequence               *uint32
	RequiredTimeLocktime   *uint32
	RequiredHeightLocktime *uint32

	Proprietary []KeyValue
	Unknown     []KeyValue
}

// Finalized reports whether the input carries final unlocking data.
func (in *Input) Finalized() bool {
	return len(in.FinalScriptSig) > 0 || len(in.FinalScriptWitness) > 0
}

// Output is the per-output map. Amount and Script are mandatory in v2 output
// maps; in v0 the corresponding data lives in the embedded transaction.
type Output struct {
	RedeemScript     []byte
	WitnessScript    []byte
	Bip32Derivations []Bip32Derivation

	// v2 only.
	Amount *uint64
	Script []byte

	Proprietary []KeyValue
	Unknown     []KeyValue
}

// KeyValue is a raw record preserved verbatim for round-trip fidelity. Key
// holds the full key bytes including the type discriminant prefix.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// PartialSig is one PSBT_IN_PARTIAL_SIG entry: a signature by the holder of
// PubKey, stored as-is.
type PartialSig struct {
	PubKey    []byte // 33-byte compressed or 65-byte uncompressed, validated
	Signature []byte
}

// Bip32Derivation is one BIP 32 derivation entry: how the key PubKey is
// derived from the wallet identified by MasterFingerprint.
type Bip32Derivation struct {
	PubKey            []byte
	MasterFingerprint [4]byte

	// Path components in derivation order; the high bit of a component marks
	// a hardened step.
	Path []uint32
}

// Xpub is one PSBT_GLOBAL_XPUB entry.
type Xpub struct {
	ExtendedKey       []byte // 78-byte serialized extended public key
	MasterFingerprint [4]byte
	Path              []uint32
}
