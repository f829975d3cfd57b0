/*
Copyright 2024 The Qserv Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package vterrors defines the error taxonomy shared by every
// component of the result-streaming-and-merging engine and the table
// metadata resolver.
package vterrors

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// resultTooBigErrno is the MySQL error number for "The table is full"
// (ER_RECORD_FILE_FULL / a bulk load overflowing tmp/result size
// limits), which higher layers translate into a user-visible
// cancellation rather than a generic engine failure.
const resultTooBigErrno = 1114

// vError is the concrete error type every constructor below returns.
type vError struct {
	code    Code
	message string
	errno   int
	wrapped error
}

func (e *vError) Error() string {
	if e.wrapped != nil {
		return e.message + ": " + e.wrapped.Error()
	}
	return e.message
}

func (e *vError) Unwrap() error { return e.wrapped }

// Errorf returns an error carrying code, formatted like fmt.Errorf.
func Errorf(code Code, format string, args ...interface{}) error {
	return &vError{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error that prefixes err's message with message,
// preserving err's code and errno if err was itself created by this
// package. Wrap(nil, ...) returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &vError{code: CodeOf(err), message: message, errno: Errno(err), wrapped: err}
}

// WithErrno attaches a SQL engine error number to a MySQLExec error.
func WithErrno(message string, errno int) error {
	return &vError{code: MySQLExec, message: message, errno: errno}
}

// CodeOf extracts the Code from err, or None if err was not created by
// this package (including err == nil).
func CodeOf(err error) Code {
	var ve *vError
	if errors.As(err, &ve) {
		return ve.code
	}
	return None
}

// Errno extracts the SQL engine error number recorded by WithErrno, or
// 0 if none was recorded.
func Errno(err error) int {
	var ve *vError
	if errors.As(err, &ve) {
		return ve.errno
	}
	return 0
}

// IsResultTooBig reports whether err represents a bulk-load failure
// because the merge table (or the engine's temp-result budget)
// overflowed: Code(err) == MySQLExec and the recorded errno is 1114,
// or err wraps a *mysql.MySQLError with that number directly.
func IsResultTooBig(err error) bool {
	if err == nil {
		return false
	}
	if CodeOf(err) == MySQLExec && Errno(err) == resultTooBigErrno {
		return true
	}
	var sqlErr *mysql.MySQLError
	if errors.As(err, &sqlErr) {
		return sqlErr.Number == resultTooBigErrno
	}
	return false
}
