// Package api provides the high-level public API for PSBT inspection.
//
// This is the main entry point for applications using the psbt-scan library.
// It wraps the lower-level packages behind byte-oriented functions:
//
//  1. Decode / DecodeHex - Parse and validate a PSBT document
//  2. Analyze - Summarize a parsed document
//  3. DecodeAndAnalyze - Both steps in one call
//  4. Combine - Merge documents describing the same transaction
//  5. Serialize - Encode a document back to binary
//
// All functions are read-only with respect to their inputs: no signing, no
// finalization, no network access.
package api

import (
	"fmt"

	"github.com/suffix-labs/psbt-scan/pkg/analysis"
	"github.com/suffix-labs/psbt-scan/pkg/psbt"
)

// ============================================================================
// Decoding
// ============================================================================

// Decode parses a PSBT document from raw bytes, accepting either binary or
// hex-encoded input.
//
// Input starting with the PSBT magic is treated as binary; anything else is
// treated as hex text. Hex may use either letter case and may contain
// whitespace.
//
// Parameters:
//   - data: Binary or hex-encoded PSBT bytes
//
// Returns:
//   - Parsed document
//   - Error if parsing or validation fails
func Decode(data []byte) (*psbt.Psbt, error) {
	if looksBinary(data) {
		return psbt.Parse(data)
	}
	return psbt.ParseHex(string(data))
}

// DecodeHex parses a hex-encoded PSBT document.
func DecodeHex(s string) (*psbt.Psbt, error) {
	return psbt.ParseHex(s)
}

// looksBinary reports whether the input starts with the binary PSBT magic.
func looksBinary(data []byte) bool {
	return len(data) >= 5 && data[0] == 0x70 && data[1] == 0x73 &&
		data[2] == 0x62 && data[3] == 0x74 && data[4] == 0xff
}

// ============================================================================
// Analysis
// ============================================================================

// Analyze summarizes a parsed document: amounts, fee, size estimates,
// workflow stage, and change detection.
//
// Parameters:
//   - p: Parsed document from Decode
//
// Returns:
//   - Analysis result
//   - Error on inconsistent amounts or counts
func Analyze(p *psbt.Psbt) (*analysis.Result, error) {
	return analysis.Analyze(p)
}

// DecodeAndAnalyze parses and then analyzes a document in one call.
func DecodeAndAnalyze(data []byte) (*psbt.Psbt, *analysis.Result, error) {
	p, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	res, err := analysis.Analyze(p)
	if err != nil {
		return nil, nil, err
	}
	return p, res, nil
}

// ============================================================================
// Combining
// ============================================================================

// Combine merges multiple serialized documents describing the same
// transaction into one.
//
// This enables parallel signing workflows where multiple parties attach
// data independently and their documents are merged afterwards.
//
// Parameters:
//   - documents: List of serialized PSBTs to combine (binary or hex)
//
// Returns:
//   - Serialized combined document
//   - Error if any document is invalid or the documents conflict
func Combine(documents [][]byte) ([]byte, error) {
	if len(documents) == 0 {
		return nil, fmt.Errorf("no documents to combine")
	}

	combined, err := Decode(documents[0])
	if err != nil {
		return nil, fmt.Errorf("invalid document 0: %w", err)
	}
	for i, data := range documents[1:] {
		p, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("invalid document %d: %w", i+1, err)
		}
		combined, err = psbt.Combine(combined, p)
		if err != nil {
			return nil, err
		}
	}

	return psbt.Serialize(combined)
}

// ============================================================================
// Serialization
// ============================================================================

// Serialize encodes a document back to binary PSBT form.
func Serialize(p *psbt.Psbt) ([]byte, error) {
	return psbt.Serialize(p)
}
