package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/blukai/coopnet/internal/byteorder"
	"github.com/blukai/coopnet/internal/zigzag"
)

var errTruncated = errors.New("truncated body")

type encoder struct {
	buf []byte
}

func (e *encoder) uint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) bool(v bool) {
	if v {
		e.uint8(1)
	} else {
		e.uint8(0)
	}
}

func (e *encoder) float32(v float32) {
	e.buf = byteorder.AppendHtonf(e.buf, v)
}

// int32 is zigzag + uvarint; animation frames and levels are tiny numbers.
func (e *encoder) int32(v int32) {
	e.buf = binary.AppendUvarint(e.buf, uint64(zigzag.Encode32(v)))
}

func (e *encoder) bytes(v []byte) {
	e.buf = byteorder.AppendHtons(e.buf, uint16(min(len(v), math.MaxUint16)))
	e.buf = append(e.buf, v[:min(len(v), math.MaxUint16)]...)
}

func (e *encoder) string(v string) {
	e.bytes([]byte(v))
}

// playerID is written as its canonical textual form; the zero id is
// written as an empty string.
func (e *encoder) playerID(id PlayerID) {
	if id.IsZero() {
		e.string("")
		return
	}
	e.string(id.String())
}

type decoder struct {
	data []byte
	off  int
	err  error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.data)-d.off < n {
		d.err = errTruncated
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) bool() bool {
	return d.uint8() != 0
}

func (d *decoder) float32() float32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return byteorder.Ntohf(b)
}

func (d *decoder) int32() int32 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data[d.off:])
	if n <= 0 || v > math.MaxUint32 {
		d.err = fmt.Errorf("invalid varint at offset %d", d.off)
		return 0
	}
	d.off += n
	return zigzag.Decode32(uint32(v))
}

func (d *decoder) bytes() []byte {
	sizeBytes := d.take(2)
	if sizeBytes == nil {
		return nil
	}
	b := d.take(int(byteorder.Ntohs(sizeBytes)))
	if b == nil {
		return nil
	}
	// copy out; the read buffer is reused by the transport.
	return append([]byte(nil), b...)
}

func (d *decoder) string() string {
	return string(d.bytes())
}

func (d *decoder) playerID() PlayerID {
	s := d.string()
	if d.err != nil || s == "" {
		return NoPlayer
	}
	id, err := ParsePlayerID(s)
	if err != nil {
		d.err = err
		return NoPlayer
	}
	return id
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.data) {
		return fmt.Errorf("%d trailing bytes", len(d.data)-d.off)
	}
	return nil
}
