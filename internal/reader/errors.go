package reader

import "fmt"

// NotFoundError marks an input file missing at open time. It aborts the
// file's task only; sibling files are unaffected.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("input file not found: %s", e.Path)
}

// DecodeError marks a byte stream that cannot be decoded under the
// configured encoding, either in the header at open time or mid-stream when
// even the recovery decoder cannot make sense of the bytes. It is fatal for
// the file's task.
type DecodeError struct {
	Path string
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("cannot decode %s at line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("cannot decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
