package spirv

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes code generation errors.
type ErrorKind uint8

const (
	// ErrStructural indicates a malformed IR module: a missing terminator,
	// a dangling value reference, or mismatched pointer types. Fatal.
	ErrStructural ErrorKind = iota

	// ErrUnsupported indicates a type or instruction this generator does
	// not implement. A fallback representation is emitted and the error is
	// reported alongside the module.
	ErrUnsupported

	// ErrInternal indicates a defect in the generator itself, such as a
	// reused id or an instruction written to the wrong section. Fatal.
	ErrInternal
)

// String returns a human-readable error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrStructural:
		return "Structural"
	case ErrUnsupported:
		return "Unsupported"
	case ErrInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error represents a SPIR-V generation error.
type Error struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Message provides details about the error.
	Message string

	// Function and Block optionally locate the error in the IR.
	Function string
	Block    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Function != "" && e.Block != "":
		return fmt.Sprintf("spirv %s in %s/%s: %s", e.Kind, e.Function, e.Block, e.Message)
	case e.Function != "":
		return fmt.Sprintf("spirv %s in %s: %s", e.Kind, e.Function, e.Message)
	default:
		return fmt.Sprintf("spirv %s: %s", e.Kind, e.Message)
	}
}

// NewError creates a new error without IR location.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// errorf formats a new error without IR location.
func errorf(kind ErrorKind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// IsStructural reports whether err wraps an ErrStructural error.
func IsStructural(err error) bool { return hasKind(err, ErrStructural) }

// IsUnsupported reports whether err wraps an ErrUnsupported error.
func IsUnsupported(err error) bool { return hasKind(err, ErrUnsupported) }

// IsInternal reports whether err wraps an ErrInternal error.
func IsInternal(err error) bool { return hasKind(err, ErrInternal) }

func hasKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
