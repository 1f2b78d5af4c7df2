package score

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means a required static input could not be obtained.
	// It is always surfaced to the caller.
	ErrUnavailable = errors.New("unavailable")
	// ErrInvalidParameter means the caller supplied an out-of-domain value.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Value is a float that may be unavailable.
type Value struct {
	v  float64
	ok bool
}

// Of returns an available value.
func Of(v float64) Value {
	return Value{v: v, ok: true}
}

// Unavailable returns the unavailable value.
func Unavailable() Value {
	return Value{}
}

// FromResult turns a (value, error) pair into a Value. Any error makes it unavailable.
func FromResult(v float64, err error) Value {
	if err != nil {
		return Unavailable()
	}
	return Of(v)
}

// Get returns the value and whether it is available.
func (v Value) Get() (float64, bool) {
	return v.v, v.ok
}

// Available reports whether v holds a value.
func (v Value) Available() bool {
	return v.ok
}

func (v Value) String() string {
	if !v.ok {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v.v)
}

// Invalid wraps ErrInvalidParameter with a description of the offending input.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}
