// Package wire implements the Bitcoin wire encoding primitives used by the
// PSBT format: a positional byte cursor, the compact size integer codec, and
// the raw transaction codec.
//
// References:
//   - Bitcoin serialization: https://developer.bitcoin.org/reference/transactions.html
//   - BIP 144 (segregated witness serialization)
package wire

import (
	"bytes"
	"encoding/binary"
)

// Reader is a positional cursor over a read-only byte buffer.
//
// All Read methods consume bytes and advance the position. Reads past the end
// of the buffer fail with TruncatedBufferError naming the field being read;
// the position is left unchanged on failure.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a cursor positioned at the start of buf. The buffer is
// not copied; callers must not mutate it while the Reader is in use.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current position in the buffer.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// PeekByte previews the next byte without consuming it. The second return
// value is false when the buffer is exhausted.
func (r *Reader) PeekByte() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	return r.buf[r.pos], true
}

// ReadByte consumes and returns a single byte.
func (r *Reader) ReadByte(field string) (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, &TruncatedBufferError{Field: field, Offset: r.pos, Need: 1}
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes consumes n bytes and returns them as a fresh slice, so decoded
// values never alias the input buffer.
func (r *Reader) ReadBytes(n int, field string) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, &TruncatedBufferError{
			Field: field, Offset: r.pos, Need: n, Have: r.Remaining(),
		}
	}
	out := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return out, nil
}

// ReadUint16 consumes a little-endian unsigned 16-bit integer.
func (r *Reader) ReadUint16(field string) (uint16, error) {
	if r.Remaining() < 2 {
		return 0, &TruncatedBufferError{Field: field, Offset: r.pos, Need: 2, Have: r.Remaining()}
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadUint32 consumes a little-endian unsigned 32-bit integer.
func (r *Reader) ReadUint32(field string) (uint32, error) {
	if r.Remaining() < 4 {
		return 0, &TruncatedBufferError{Field: field, Offset: r.pos, Need: 4, Have: r.Remaining()}
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUint64 consumes a little-endian unsigned 64-bit integer.
func (r *Reader) ReadUint64(field string) (uint64, error) {
	if r.Remaining() < 8 {
		return 0, &TruncatedBufferError{Field: field, Offset: r.pos, Need: 8, Have: r.Remaining()}
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Writer helpers mirror the Reader. Encoding goes through a bytes.Buffer,
// whose Write methods cannot fail, so the helpers return nothing.

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
