// Package testutil has helpers used in tests across the repository.
package testutil

import "os"

// Must returns v, panicking if err is not nil. It makes test setup succinct
// when a "can't happen" failure would make the test meaningless anyway.
func Must[T any](v T, err error) T {
	MustOK(err)
	return v
}

// MustOK panics if the error value is not nil.
func MustOK(err error) {
	if err != nil {
		panic(err)
	}
}

// MustWriteFile calls os.WriteFile and panics if an error occurs.
func MustWriteFile(filename string, data []byte, perm os.FileMode) {
	MustOK(os.WriteFile(filename, data, perm))
}
