package domain

import "errors"

type ErrorKind string

const (
	ErrorNone          ErrorKind = ""
	ErrorRequiredField ErrorKind = "requiredField"
	ErrorInvalidURL    ErrorKind = "invalidURL"
	ErrorDuplicateFeed ErrorKind = "duplicateFeed"
	ErrorNetwork       ErrorKind = "networkError"
	ErrorInvalidFeed   ErrorKind = "invalidFeed"
	ErrorUnknown       ErrorKind = "unknown"
)

// FormLocal reports whether the kind belongs to form validation and never reaches global state.
func (k ErrorKind) FormLocal() bool {
	switch k {
	case ErrorRequiredField, ErrorInvalidURL, ErrorDuplicateFeed:
		return true
	case ErrorNone, ErrorNetwork, ErrorInvalidFeed, ErrorUnknown:
		return false
	default:
		return false
	}
}

type Error struct {
	Kind ErrorKind
	Err  error
}

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}

	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind of a classified error. Nil maps to ErrorNone, anything
// unclassified to ErrorUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return ErrorUnknown
}
