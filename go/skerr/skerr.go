// Package skerr builds errors that carry the file:line of where they were
// created or wrapped, so a log line or API error response can point at the
// call site instead of a bare message. The teacher (golden/go/web/web.go,
// golden/go/config/config.go) imports go.skia.org/infra/go/skerr
// extensively as skerr.Fmt/skerr.Wrap/skerr.Wrapf; that package's source
// was not part of the retrieved pack, so this reimplements the contract
// those call sites rely on.
package skerr

import (
	"errors"
	"fmt"
	"runtime"
)

type withLocation struct {
	cause error
	msg   string
	file  string
	line  int
}

func (e *withLocation) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%s:%d: %s", e.file, e.line, e.cause.Error())
	}
	return fmt.Sprintf("%s:%d: %s: %s", e.file, e.line, e.msg, e.cause.Error())
}

func (e *withLocation) Unwrap() error { return e.cause }

func location(skip int) (file string, line int) {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???", 0
	}
	return file, line
}

// Fmt builds a new error annotated with the caller's file:line, formatted
// like fmt.Errorf.
func Fmt(format string, args ...interface{}) error {
	file, line := location(2)
	return &withLocation{cause: fmt.Errorf(format, args...), file: file, line: line}
}

// Wrap annotates err with the caller's file:line. Returns nil if err is nil,
// so call sites can write `return skerr.Wrap(err)` unconditionally.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	file, line := location(2)
	return &withLocation{cause: err, file: file, line: line}
}

// Wrapf is like Wrap but attaches a message, the way fmt.Errorf("%w", ...)
// would, without losing err's identity for errors.Is/As.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	file, line := location(2)
	return &withLocation{cause: err, msg: fmt.Sprintf(format, args...), file: file, line: line}
}

// Unwrap exposes the standard errors.Unwrap chain walk for convenience.
func Unwrap(err error) error { return errors.Unwrap(err) }
