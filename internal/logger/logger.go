// Package logger builds the phuslu/log loggers shared by every component.
package logger

import (
	"io"

	"github.com/phuslu/log"
)

// Console returns a pretty console logger at the given level ("debug",
// "info", ...). Unknown levels fall back to info.
//
// https://github.com/phuslu/log?tab=readme-ov-file#pretty-console-writer
func Console(level string) *log.Logger {
	logger := log.DefaultLogger

	logger.Level = log.ParseLevel(level)
	logger.Caller = 1
	logger.TimeFormat = "15:04:05"
	logger.Writer = &log.ConsoleWriter{
		ColorOutput:    true,
		QuoteString:    true,
		EndWithMessage: true,
	}

	return &logger
}

// OrDiscard returns l, or a silenced copy of the default logger when l is
// nil (which is what tests usually pass).
func OrDiscard(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}

	tmp := log.DefaultLogger
	tmp.Writer = &log.IOWriter{Writer: io.Discard}
	return &tmp
}
