package classfile

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncated is returned when the data ends in the middle of a structure.
var ErrTruncated = errors.New("classfile: unexpected end of data")

// Reader is a big-endian cursor over classfile data.
//
// The first failed read is remembered and every later read returns zero values,
// so callers can decode a whole structure and check Err once.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Bytes returns the next n bytes without copying.
func (r *Reader) Bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = errors.Wrapf(ErrTruncated, "reading %d bytes at offset %d", n, r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) U1() uint8 {
	if b := r.Bytes(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) U2() uint16 {
	if b := r.Bytes(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) U4() uint32 {
	if b := r.Bytes(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func appendU2(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }
func appendU4(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }

// U2 reads a big-endian uint16 at off in code.
func U2(code []byte, off int) uint16 { return binary.BigEndian.Uint16(code[off:]) }

// S2 reads a big-endian int16 at off in code.
func S2(code []byte, off int) int16 { return int16(binary.BigEndian.Uint16(code[off:])) }

// S4 reads a big-endian int32 at off in code.
func S4(code []byte, off int) int32 { return int32(binary.BigEndian.Uint32(code[off:])) }
