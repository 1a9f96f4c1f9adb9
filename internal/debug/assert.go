package debug

import (
	"fmt"
	"runtime"
)

// NOTE: assertions guard programming errors only (wrong buffer sizes handed
// to a codec, impossible message kinds). anything that can be triggered by
// bytes coming off the wire must return an error instead.

// Assert panics with the caller's location when truth is false.
func Assert(truth bool, msg ...string) {
	if len(msg) > 1 {
		panic("invalid assert args")
	}
	if !truth {
		fail(fmt.Sprintf("assertion failed(%s)", msg))
	}
}

// Assertf is Assert with a formatted message.
func Assertf(truth bool, format string, args ...any) {
	if !truth {
		fail("assertion failed: " + fmt.Sprintf(format, args...))
	}
}

func fail(msg string) {
	// skip fail and Assert/Assertf to point at the assertion site.
	if _, file, line, ok := runtime.Caller(2); ok {
		msg = fmt.Sprintf("%s:%d: %s", file, line, msg)
	}
	panic(msg)
}
