package wire

import "fmt"

// TruncatedBufferError is returned when a read requires more bytes than
// remain in the buffer. Structurally invalid data that fits in the buffer
// fails with MalformedTransactionError instead; no partially decoded value
// is ever returned alongside either.
type TruncatedBufferError struct {
	Field  string // Name of the field being read when the buffer ran out
	Offset int    // Position in the buffer where the read started
	Need   int    // Bytes required to complete the read
	Have   int    // Bytes actually remaining
}

func (e *TruncatedBufferError) Error() string {
	return fmt.Sprintf("truncated buffer reading %s at offset %d: need %d bytes, have %d",
		e.Field, e.Offset, e.Need, e.Have)
}

// MalformedTransactionError is returned when transaction bytes are
// structurally invalid.
type MalformedTransactionError struct {
	Field string // Field or section that failed to decode
	Cause error  // Underlying error (if any)
}

func (e *MalformedTransactionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed transaction: %s: %v", e.Field, e.Cause)
	}
	return fmt.Sprintf("malformed transaction: %s", e.Field)
}

func (e *MalformedTransactionError) Unwrap() error {
	return e.Cause
}
