package esedb

import (
	"bytes"
	"encoding/binary"
	"io"
)

// bytesReader is a small helper so callers decoding an already-read-into-
// memory payload (a tag's data, a row's entry_data) don't need to import
// "bytes" themselves just to get an io.Reader.
func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// littleEndianReader is a thin adaptor over a byte stream exposing typed
// little-endian reads, in the spirit of the teacher's encoding/binary usage
// throughout internal/storage/pager, but wrapped as a cursor-style reader
// matching the original decoder's ByteRead trait rather than a fixed-layout
// buffer (the wire format here is read sequentially field by field, not
// marshaled as a single flat struct).
type littleEndianReader struct {
	r io.Reader
}

func newLittleEndianReader(r io.Reader) *littleEndianReader {
	return &littleEndianReader{r: r}
}

func (l *littleEndianReader) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(l.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (l *littleEndianReader) readU8() (uint8, error) {
	b, err := l.readFull(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (l *littleEndianReader) readU16() (uint16, error) {
	b, err := l.readFull(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (l *littleEndianReader) readU32() (uint32, error) {
	b, err := l.readFull(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (l *littleEndianReader) readU64() (uint64, error) {
	b, err := l.readFull(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (l *littleEndianReader) readI8() (int8, error) {
	v, err := l.readU8()
	return int8(v), err
}

func (l *littleEndianReader) readI16() (int16, error) {
	v, err := l.readU16()
	return int16(v), err
}

func (l *littleEndianReader) readI32() (int32, error) {
	v, err := l.readU32()
	return int32(v), err
}

func (l *littleEndianReader) readI64() (int64, error) {
	v, err := l.readU64()
	return int64(v), err
}

func (l *littleEndianReader) readBytes(n int) ([]byte, error) {
	return l.readFull(n)
}
