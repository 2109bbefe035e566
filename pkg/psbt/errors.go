package psbt

import "fmt"

// Parse-time failures are terminal for the document under construction; no
// partial document is ever returned. Each error identifies, where feasible,
// the offending map and key. Missing-but-legal data (absent UTXOs, absent
// derivation metadata) is never an error; those conditions surface as absent
// fields on the parsed document.

// MagicMismatchError is returned when the buffer does not start with the
// 5-byte PSBT magic sequence.
type MagicMismatchError struct {
	Got []byte // The bytes found where the magic was expected
}

func (e *MagicMismatchError) Error() string {
	return fmt.Sprintf("invalid magic bytes: %x", e.Got)
}

// UnsupportedVersionError is returned when an explicit PSBT_GLOBAL_VERSION
// field carries any value other than 2.
type UnsupportedVersionError struct {
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported PSBT version: %d", e.Version)
}

// MalformedMapError is returned when a key-value record or a typed field
// value cannot be decoded.
type MalformedMapError struct {
	Map   string // "global", "input 0", "output 3", ...
	Field string
	Cause error
}

func (e *MalformedMapError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed %s map: %s: %v", e.Map, e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed %s map: %s", e.Map, e.Field)
}

func (e *MalformedMapError) Unwrap() error {
	return e.Cause
}

// DuplicateKeyError is returned when two records in one map share identical
// full key bytes. Maps are sets keyed by the full key, never multimaps.
type DuplicateKeyError struct {
	Map string
	Key []byte
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %x in %s map", e.Key, e.Map)
}

// MalformedDocumentError is returned for structural invariant violations
// spanning more than one record: a missing mandatory field, a forbidden
// version-specific field, or an embedded transaction that is not unsigned.
type MalformedDocumentError struct {
	Reason string
}

func (e *MalformedDocumentError) Error() string {
	return "malformed document: " + e.Reason
}

// TrailingDataError is returned when bytes remain after the last output map.
type TrailingDataError struct {
	Offset int // Position of the first trailing byte
	Length int // Number of trailing bytes
}

func (e *TrailingDataError) Error() string {
	return fmt.Sprintf("%d trailing bytes after final map at offset %d", e.Length, e.Offset)
}

// ConflictingDataError is returned by Combine when the two documents carry
// differing values for the same key, or do not share the same underlying
// transaction. The conflict is deterministic; nothing is silently
// overwritten.
type ConflictingDataError struct {
	Map    string
	Key    []byte
	Reason string
}

func (e *ConflictingDataError) Error() string {
	if len(e.Key) > 0 {
		return fmt.Sprintf("conflicting data in %s map for key %x: %s", e.Map, e.Key, e.Reason)
	}
	return fmt.Sprintf("conflicting data in %s map: %s", e.Map, e.Reason)
}
