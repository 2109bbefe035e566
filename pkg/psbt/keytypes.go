// Package psbt implements the Partially Signed Bitcoin Transaction format.
//
// This is a decoder, validator, and re-encoder for the typed key-value map
// container defined by BIP 174 (PSBT version 0) and BIP 370 (PSBT version 2).
// It never constructs, signs, or mutates transactions: documents are parsed
// from immutable byte buffers into immutable values, and the only operation
// producing a new document is Combine.
//
// References:
//   - BIP 174: https://github.com/bitcoin/bips/blob/master/bip-0174.mediawiki
//   - BIP 370: https://github.com/bitcoin/bips/blob/master/bip-0370.mediawiki
package psbt

// Key type discriminants for the global map. The discriminant is the leading
// compact size integer of each record's key bytes.
const (
	GlobalUnsignedTx       uint64 = 0x00 // v0 only: embedded unsigned transaction
	GlobalXpub             uint64 = 0x01
	GlobalTxVersion        uint64 = 0x02 // v2 only
	GlobalFallbackLocktime uint64 = 0x03 // v2 only
	GlobalInputCount       uint64 = 0x04 // v2 only
	GlobalOutputCount      uint64 = 0x05 // v2 only
	GlobalTxModifiable     uint64 = 0x06 // v2 only
	GlobalVersion          uint64 = 0xFB
	GlobalProprietary      uint64 = 0xFC
)

// Key type discriminants for input maps.
const (
	InNonWitnessUtxo         uint64 = 0x00
	InWitnessUtxo            uint64 = 0x01
	InPartialSig             uint64 = 0x02
	InSighashType            uint64 = 0x03
	InRedeemScript           uint64 = 0x04
	InWitnessScript          uint64 = 0x05
	InBip32Derivation        uint64 = 0x06
	InFinalScriptSig         uint64 = 0x07
	InFinalScriptWitness     uint64 = 0x08
	InPreviousTxid           uint64 = 0x0e // v2 only
	InOutputIndex            uint64 = 0x0f // v2 only
	InSequence               uint64 = 0x10 // v2 only
	InRequiredTimeLocktime   uint64 = 0x11 // v2 only
	InRequiredHeightLocktime uint64 = 0x12 // v2 only
	InProprietary            uint64 = 0xFC
)

// Key type discriminants for output maps.
const (
	OutRedeemScript    uint64 = 0x00
	OutWitnessScript   uint64 = 0x01
	OutBip32Derivation uint64 = 0x02
	OutAmount          uint64 = 0x03 // v2 only
	OutScript          uint64 = 0x04 // v2 only
	OutProprietary     uint64 = 0xFC
)

// TxModifiable bitfield flags (PSBT_GLOBAL_TX_MODIFIABLE, BIP 370).
const (
	FlagInputsModifiable  uint8 = 1 << 0
	FlagOutputsModifiable uint8 = 1 << 1
	FlagHasSighashSingle  uint8 = 1 << 2
)
