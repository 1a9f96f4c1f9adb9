package byteorder

import (
	"encoding/binary"
	"math"
)

// https://linux.die.net/man/3/ntohs
//
// decrypt names:
// h  = host
// n  = network
// s  = short     = 16 bit
// l  = long      = 32 bit
// f  = float     = 32 bit ieee-754

func Htonl(val uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, val)
	return buf
}

func Htons(val uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, val)
	return buf
}

func Htonf(val float32) []byte {
	return Htonl(math.Float32bits(val))
}

func Ntohl(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf)
}

func Ntohs(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf)
}

func Ntohf(buf []byte) float32 {
	return math.Float32frombits(Ntohl(buf))
}

// AppendHtons and friends are the allocation-free variants used by the
// message encoder, which writes into a single growing buffer.

func AppendHtons(dst []byte, val uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, val)
}

func AppendHtonl(dst []byte, val uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, val)
}

func AppendHtonf(dst []byte, val float32) []byte {
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(val))
}
