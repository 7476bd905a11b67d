package ilp

import (
	"bytes"
	"io"
)

// maxPacketSize is the implementation-defined ceiling on a single encoded
// packet, per spec §3 ("total serialized length bounded, implementation ≥ 32 KiB").
const maxPacketSize = 65536

// maxDataSize is the ceiling on a Prepare's attached data (spec §3).
const maxDataSize = 32767

// maxMessageSize is the ceiling on a Reject's UTF-8 message (spec §3).
const maxMessageSize = 8192

// writeLengthPrefix appends an OER variable-length-quantity length prefix.
func writeLengthPrefix(buf *bytes.Buffer, n int) {
	if n < 0x80 {
		buf.WriteByte(byte(n))
		return
	}
	var lenBytes []byte
	x := n
	for x > 0 {
		lenBytes = append([]byte{byte(x & 0xff)}, lenBytes...)
		x >>= 8
	}
	buf.WriteByte(0x80 | byte(len(lenBytes)))
	buf.Write(lenBytes)
}

// readLengthPrefix reads an OER variable-length-quantity length prefix.
func readLengthPrefix(r *bytes.Reader) (int, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	if b < 0x80 {
		return int(b), nil
	}
	n := int(b &^ 0x80)
	if n == 0 || n > 4 {
		return 0, ErrInvalidLength
	}
	lb := make([]byte, n)
	if _, err := io.ReadFull(r, lb); err != nil {
		return 0, ErrTruncated
	}
	length := 0
	for _, bb := range lb {
		length = (length << 8) | int(bb)
	}
	if length < 0 || length > maxPacketSize {
		return 0, ErrDataTooLarge
	}
	return length, nil
}

// writeVarOctetString writes an OER length-prefixed octet string.
func writeVarOctetString(buf *bytes.Buffer, data []byte) {
	writeLengthPrefix(buf, len(data))
	buf.Write(data)
}

// readVarOctetString reads an OER length-prefixed octet string, rejecting a
// declared length that exceeds the remaining input.
func readVarOctetString(r *bytes.Reader) ([]byte, error) {
	length, err := readLengthPrefix(r)
	if err != nil {
		return nil, err
	}
	if length > r.Len() {
		return nil, ErrTruncated
	}
	if length == 0 {
		return nil, nil
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, ErrTruncated
	}
	return data, nil
}

// readFixed reads exactly n bytes.
func readFixed(r *bytes.Reader, n int) ([]byte, error) {
	if r.Len() < n {
		return nil, ErrTruncated
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrTruncated
	}
	return b, nil
}
