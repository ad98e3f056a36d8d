package device

// Code is one of the engine's error taxonomy values.
type Code int

const (
	CodeNone Code = iota
	CodeFail
	CodeWarning
	CodeInputNull
	CodeInvalidUse
	CodeSystemError
)

func (c Code) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeFail:
		return "fail"
	case CodeWarning:
		return "warning"
	case CodeInputNull:
		return "input-null"
	case CodeInvalidUse:
		return "invalid-use"
	case CodeSystemError:
		return "system-error"
	default:
		return "unknown"
	}
}

// Error wraps a Code and an optional underlying cause so the engine's
// taxonomy composes with errors.Is/errors.As instead of being a bare enum.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, device.ErrInvalidUse) style checks against the
// sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinel errors for errors.Is comparisons. Messages are empty so any
// *Error with the matching Code compares equal via Is.
var (
	ErrNone        = newError(CodeNone, "")
	ErrFail        = newError(CodeFail, "")
	ErrWarning     = newError(CodeWarning, "")
	ErrInputNull   = newError(CodeInputNull, "")
	ErrInvalidUse  = newError(CodeInvalidUse, "")
	ErrSystemError = newError(CodeSystemError, "")
)

// InvalidUse builds an *Error with CodeInvalidUse and a descriptive message.
func InvalidUse(message string) *Error { return newError(CodeInvalidUse, message) }

// Fail builds an *Error with CodeFail and a descriptive message.
func Fail(message string) *Error { return newError(CodeFail, message) }

// Warning builds an *Error with CodeWarning and a descriptive message.
func Warning(message string) *Error { return newError(CodeWarning, message) }

// SystemError wraps a backend/system-level failure.
func SystemError(message string, cause error) *Error {
	return wrapError(CodeSystemError, message, cause)
}
