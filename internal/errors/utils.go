package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with a kind and message, preserving the path and key
// path of an inner *GenError.
func Wrap(err error, kind Kind, message string) *GenError {
	if err == nil {
		return nil
	}

	var ge *GenError
	if errors.As(err, &ge) {
		return &GenError{
			Kind:    kind,
			Message: message,
			Path:    ge.Path,
			KeyPath: ge.KeyPath,
			Cause:   ge,
			Context: ge.Context,
		}
	}

	return &GenError{
		Kind:    kind,
		Message: message,
		Cause:   err,
	}
}

// WrapIO wraps an error as an I/O error for path.
func WrapIO(err error, path, message string) *GenError {
	ge := Wrap(err, KindIO, message)
	if ge != nil {
		ge.Path = path
	}
	return ge
}

// InFile attaches path to a merge conflict raised while folding that file,
// leaving other errors untouched.
func InFile(err error, path string) error {
	var ge *GenError
	if errors.As(err, &ge) && ge.Path == "" {
		ge.Path = path
	}
	return err
}

// AtKey prefixes the key path of a merge conflict with key as it unwinds
// through nested objects.
func AtKey(err error, key string) error {
	var ge *GenError
	if !errors.As(err, &ge) {
		return err
	}

	if ge.KeyPath == "" {
		ge.KeyPath = key
	} else {
		ge.KeyPath = fmt.Sprintf("%s.%s", key, ge.KeyPath)
	}
	return err
}
