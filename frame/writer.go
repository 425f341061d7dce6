package frame

import (
	"encoding/binary"
	"github.com/pkg/errors"
	"math"
)

// Writer encodes fields using the same layout rules as Reader.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) PutUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutFloat32(v float32) {
	w.PutUint32(math.Float32bits(v))
}

// PutString writes s as UTF-16LE padded to width bytes with Sentinel code units.
func (w *Writer) PutString(s string, width int) error {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return errors.Wrapf(err, "unable to encode %q as utf-16", s)
	}
	if width%2 != 0 || len(encoded) > width {
		return errors.Errorf("string %q does not fit in %d bytes", s, width)
	}
	w.buf = append(w.buf, encoded...)
	for i := len(encoded); i < width; i += 2 {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, Sentinel)
	}
	return nil
}

func (w *Writer) Skip(n int) {
	w.buf = append(w.buf, make([]byte, n)...)
}
