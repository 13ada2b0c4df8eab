package types

import (
	"encoding/binary"
	"math"
)

// Byte-strings and sequences are framed with a u16 length or count.
const MaxFieldLength = math.MaxUint16

// Minimum encoded sizes used to reject impossible element counts before allocating.
const (
	minBytesSize          = 2
	minUint64Size         = 8
	minSourceSpecSize     = 4 + 2 + 4
	minSourceSpecURLSize  = 2*4 + 4 + 1 + 1 + 2 + 2*2 + 4*2
	minSourceSpecOffChain = 4 + 1 + 2 + 2 + 2*2 + 4*2
	minBoxRefSize         = 2 + 8
)

// encoder appends fields in declaration order. The first error sticks.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) uint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) uint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *encoder) uint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *encoder) fixed(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) length(n int, field string) {
	if n > MaxFieldLength {
		if e.err == nil {
			e.err = ErrMalformedEnvelope.Wrapf("%s: length %d exceeds %d", field, n, MaxFieldLength)
		}
		return
	}
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(n))
}

func (e *encoder) bytes(b []byte, field string) {
	e.length(len(b), field)
	e.buf = append(e.buf, b...)
}

func (e *encoder) bytesList(list [][]byte, field string) {
	e.length(len(list), field)
	for _, b := range list {
		e.bytes(b, field)
	}
}

func (e *encoder) uint64List(list []uint64, field string) {
	e.length(len(list), field)
	for _, v := range list {
		e.uint64(v)
	}
}

func (e *encoder) result() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// decoder reads fields in declaration order and never reads past the buffer.
// The first error sticks and every later read returns a zero value.
type decoder struct {
	buf []byte
	off int
	err error
}

func newDecoder(bz []byte) *decoder {
	return &decoder{buf: bz}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) fail(field string, need int) {
	if d.err == nil {
		d.err = ErrMalformedEnvelope.Wrapf("%s: need %d bytes at offset %d, %d left", field, need, d.off, d.remaining())
	}
}

func (d *decoder) take(n int, field string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.fail(field, n)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) uint8(field string) uint8 {
	b := d.take(1, field)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) uint16(field string) uint16 {
	b := d.take(2, field)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (d *decoder) uint32(field string) uint32 {
	b := d.take(4, field)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) uint64(field string) uint64 {
	b := d.take(8, field)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) fixed(dst []byte, field string) {
	if b := d.take(len(dst), field); b != nil {
		copy(dst, b)
	}
}

// bytes returns a copy of a length-prefixed byte-string, nil when empty.
func (d *decoder) bytes(field string) []byte {
	n := int(d.uint16(field))
	b := d.take(n, field)
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

// count reads a sequence count and rejects counts the remaining buffer cannot hold.
func (d *decoder) count(field string, minElemSize int) int {
	n := int(d.uint16(field))
	if d.err != nil {
		return 0
	}
	if n*minElemSize > d.remaining() {
		d.err = ErrMalformedEnvelope.Wrapf("%s: %d elements cannot fit in %d bytes", field, n, d.remaining())
		return 0
	}
	return n
}

func (d *decoder) bytesList(field string) [][]byte {
	n := d.count(field, minBytesSize)
	if n == 0 {
		return nil
	}
	list := make([][]byte, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		list = append(list, d.bytes(field))
	}
	return list
}

func (d *decoder) uint64List(field string) []uint64 {
	n := d.count(field, minUint64Size)
	if n == 0 {
		return nil
	}
	list := make([]uint64, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		list = append(list, d.uint64(field))
	}
	return list
}

// finish rejects trailing bytes after a complete top-level value.
func (d *decoder) finish(what string) error {
	if d.err != nil {
		return d.err
	}
	if d.remaining() != 0 {
		return ErrMalformedEnvelope.Wrapf("%s: %d trailing bytes", what, d.remaining())
	}
	return nil
}

// EncodeUint32 returns the big-endian encoding of v.
func EncodeUint32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

// EncodeUint64 returns the big-endian encoding of v.
func EncodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// EncodeBytes returns b framed with its u16 length.
func EncodeBytes(b []byte) ([]byte, error) {
	e := new(encoder)
	e.bytes(b, "bytes")
	return e.result()
}

// DecodeUint32 decodes exactly four big-endian bytes.
func DecodeUint32(bz []byte) (uint32, error) {
	d := newDecoder(bz)
	v := d.uint32("uint32")
	return v, d.finish("uint32")
}

// DecodeUint64 decodes exactly eight big-endian bytes.
func DecodeUint64(bz []byte) (uint64, error) {
	d := newDecoder(bz)
	v := d.uint64("uint64")
	return v, d.finish("uint64")
}

// DecodeBytes decodes a single length-prefixed byte-string.
func DecodeBytes(bz []byte) ([]byte, error) {
	d := newDecoder(bz)
	b := d.bytes("bytes")
	return b, d.finish("bytes")
}
