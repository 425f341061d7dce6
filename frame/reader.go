package frame

import (
	"encoding/binary"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"math"
	"strings"
)

// Sentinel terminates fixed-width strings; anything after it is padding.
const Sentinel = '%'

var ErrTooShort = errors.New("frame too short")

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Reader decodes little-endian fields from a fixed buffer, advancing an
// internal offset. The buffer is never modified.
type Reader struct {
	buf    []byte
	offset int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Offset() int {
	return r.offset
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.offset
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errors.Wrapf(ErrTooShort, "need %d bytes at offset %d, have %d",
			n, r.offset, r.Remaining())
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// String decodes width bytes of UTF-16LE and truncates at the first Sentinel.
func (r *Reader) String(width int) (string, error) {
	b, err := r.take(width)
	if err != nil {
		return "", err
	}
	decoded, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrapf(err, "unable to decode utf-16 string at offset %d", r.offset-width)
	}
	s := string(decoded)
	if i := strings.IndexRune(s, Sentinel); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "\x00"), nil
}

// Skip advances over a reserved region without interpreting it.
func (r *Reader) Skip(n int) error {
	_, err := r.take(n)
	return err
}
