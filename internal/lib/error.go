package lib

import "fmt"

// WrapError wraps err into topErr so both can be matched with errors.Is
func WrapError(topErr error, err error) error {
	return &wrappedError{topErr: topErr, err: err}
}

type wrappedError struct {
	topErr error
	err    error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.topErr, e.err)
}

func (e *wrappedError) Is(target error) bool {
	return e.topErr == target
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
