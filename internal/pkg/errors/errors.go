package errors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalid             = errors.New("invalid")
	ErrConflict            = errors.New("conflict")
	ErrTooMany             = errors.New("too many requests")
	ErrInternal            = errors.New("internal")
	ErrUpstream            = errors.New("upstream unavailable")
	ErrInvalidMode         = errors.New("invalid context mode")
	ErrMissingSelectedText = errors.New("selected text is required")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
