package wire

import "bytes"

// Compact size integers use 1, 3, 5, or 9 bytes depending on magnitude:
//
//	< 0xfd:        1 byte (the value itself)
//	<= 0xffff:     0xfd followed by uint16le
//	<= 0xffffffff: 0xfe followed by uint32le
//	otherwise:     0xff followed by uint64le
//
// Encoding always emits the minimal width for the value. Decoding accepts
// non-canonical wider encodings; whether those should be rejected is left
// open by BIP 174 and existing parsers accept them.

// ReadCompactSize consumes a compact size integer from the cursor.
func (r *Reader) ReadCompactSize(field string) (uint64, error) {
	first, err := r.ReadByte(field)
	if err != nil {
		return 0, err
	}

	switch first {
	case 0xfd:
		v, err := r.ReadUint16(field)
		return uint64(v), err
	case 0xfe:
		v, err := r.ReadUint32(field)
		return uint64(v), err
	case 0xff:
		return r.ReadUint64(field)
	default:
		return uint64(first), nil
	}
}

// WriteCompactSize appends the minimal-width encoding of v to buf.
func WriteCompactSize(buf *bytes.Buffer, v uint64) {
	switch {
	case v < 0xfd:
		buf.WriteByte(byte(v))
	case v <= 0xffff:
		buf.WriteByte(0xfd)
		buf.WriteByte(byte(v))
		buf.WriteByte(byte(v >> 8))
	case v <= 0xffffffff:
		buf.WriteByte(0xfe)
		writeUint32(buf, uint32(v))
	default:
		buf.WriteByte(0xff)
		writeUint64(buf, v)
	}
}

// CompactSizeLen returns the encoded length of v in bytes.
func CompactSizeLen(v uint64) int {
	switch {
	case v < 0xfd:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
