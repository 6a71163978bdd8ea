// Package errl wraps errors with the stack of the caller, keeping them
// compatible with errors.Is and errors.As.
package errl

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error annotates err with a stack trace. It returns nil if err is nil.
func Error(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// Errorf formats an error like fmt.Errorf (so %w wraps) and records the stack.
func Errorf(format string, args ...any) error {
	return errors.WithStack(fmt.Errorf(format, args...))
}
