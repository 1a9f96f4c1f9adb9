package lobby

import (
	"math/rand/v2"
	"strings"
)

const CodeLength = 4

func NewCode() string {
	var b [CodeLength]byte
	for i := range b {
		b[i] = 'A' + byte(rand.IntN(26))
	}
	return string(b[:])
}

// NormalizeCode makes codes typed by people comparable.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
