package payload

import (
	"fmt"
	"strings"
)

// DecodeError reports a payload that is not valid UTF-8 or not a JSON document.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PathError reports a path segment that does not exist in the document.
type PathError struct {
	Path  []string
	Index int
	Kind  Kind
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path %q: no element %q in %s", strings.Join(e.Path, "."), e.Path[e.Index], e.Kind)
}

// FormatError reports a leaf that cannot be read as a finite number.
type FormatError struct {
	Text string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid number %q: %v", e.Text, e.Err)
	}
	return fmt.Sprintf("invalid number %q", e.Text)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
