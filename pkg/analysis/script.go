// Package analysis inspects parsed PSBT documents: it classifies output
// scripts, resolves input amounts, computes fee and size estimates, detects
// the workflow stage the document has reached, and flags probable change
// outputs.
package analysis

// Script opcodes used by the standard output templates.
const (
	op0            = 0x00
	op1            = 0x51
	opDup          = 0x76
	opEqual        = 0x87
	opEqualVerify  = 0x88
	opHash160      = 0xa9
	opCheckSig     = 0xac
	opData20       = 0x14
	opData32       = 0x20
)

// ScriptType identifies which standard output template a scriptPubKey
// matches. Classification is purely structural and total: any script that
// matches no template is ScriptUnknown.
type ScriptType int

const (
	ScriptUnknown ScriptType = iota
	ScriptP2PKH
	ScriptP2SH
	ScriptP2WPKH
	ScriptP2WSH
	ScriptP2TR
)

// String returns the conventional short name of the script type.
func (t ScriptType) String() string {
	switch t {
	case ScriptP2PKH:
		return "P2PKH"
	case ScriptP2SH:
		return "P2SH"
	case ScriptP2WPKH:
		return "P2WPKH"
	case ScriptP2WSH:
		return "P2WSH"
	case ScriptP2TR:
		return "P2TR"
	default:
		return "unknown"
	}
}

// AddressFamily returns a human-readable description of the address family
// the script type belongs to, for report rendering.
func (t ScriptType) AddressFamily() string {
	switch t {
	case ScriptP2PKH:
		return "Legacy / Base58"
	case ScriptP2SH:
		return "Nested SegWit / Legacy"
	case ScriptP2WPKH, ScriptP2WSH:
		return "Native SegWit (bech32)"
	case ScriptP2TR:
		return "Native SegWit v1 (bech32m)"
	default:
		return "Unknown"
	}
}

// ClassifyScript matches a scriptPubKey against the standard templates by
// exact length and opcode positions.
func ClassifyScript(script []byte) ScriptType {
	switch {
	case len(script) == 25 && script[0] == opDup && script[1] == opHash160 &&
		script[2] == opData20 && script[23] == opEqualVerify && script[24] == opCheckSig:
		return ScriptP2PKH

	case len(script) == 23 && script[0] == opHash160 &&
		script[1] == opData20 && script[22] == opEqual:
		return ScriptP2SH

	case len(script) == 22 && script[0] == op0 && script[1] == opData20:
		return ScriptP2WPKH

	case len(script) == 34 && script[0] == op0 && script[1] == opData32:
		return ScriptP2WSH

	case len(script) == 34 && script[0] == op1 && script[1] == opData32:
		return ScriptP2TR

	default:
		return ScriptUnknown
	}
}
