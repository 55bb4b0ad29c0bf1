package api

import "fmt"

// errFmt wraps sentinel with a formatted message, so callers can both
// errors.Is(err, ErrInvalidArgument) and print a specific reason.
func errFmt(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}
