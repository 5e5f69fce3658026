// Package pb is a minimal protobuf-wire-compatible varint and
// length-delimited codec, used by wire.Meta and the protocol drivers to
// (de)serialize their meta records.
//
// It is hand-rolled rather than built on google.golang.org/protobuf
// because that library requires generated message code from a .proto
// file via protoc, which is not available in this environment — see
// DESIGN.md for the full justification. It implements exactly the two
// primitives spec.md's meta records need (varint and length-delimited
// fields), matching the wire encoding protobuf itself uses so captured
// bytes remain byte-compatible with a real protobuf implementation of
// the same field layout.
package pb

import (
	"encoding/binary"
	"errors"
)

var ErrTruncated = errors.New("pb: truncated varint")

// PutUvarint appends x to dst protobuf-varint-encoded.
func PutUvarint(dst []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(dst, tmp[:n]...)
}

// Uvarint reads a varint from src, returning the value and bytes
// consumed, or (0, 0) if src doesn't yet hold a complete varint.
func Uvarint(src []byte) (uint64, int) {
	return binary.Uvarint(src)
}

// PutString appends a length-delimited string (varint length + bytes).
func PutString(dst []byte, s string) []byte {
	dst = PutUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// String reads a length-delimited string, returning it and bytes
// consumed (0 if incomplete).
func String(src []byte) (string, int) {
	n, used := Uvarint(src)
	if used == 0 || len(src) < used+int(n) {
		return "", 0
	}
	return string(src[used : used+int(n)]), used + int(n)
}

// PutBytes appends a length-delimited byte slice.
func PutBytes(dst []byte, b []byte) []byte {
	dst = PutUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func Bytes(src []byte) ([]byte, int) {
	n, used := Uvarint(src)
	if used == 0 || len(src) < used+int(n) {
		return nil, 0
	}
	return src[used : used+int(n)], used + int(n)
}
