package scale

import (
	"errors"
	"fmt"
)

type encodeError struct {
	err error
}

func (e encodeError) Error() string {
	if e.err == nil {
		return "scale encode:"
	}
	return "scale encode: " + e.err.Error()
}

func (e encodeError) Unwrap() error { return e.err }

func makeEncodeError(format string, args ...any) encodeError {
	return encodeError{err: fmt.Errorf(format, args...)}
}

// DecodeError 解码失败，数据不完整或者不合法
type DecodeError struct {
	err error
}

func (e DecodeError) Error() string {
	if e.err == nil {
		return "scale decode:"
	}
	return "scale decode: " + e.err.Error()
}

func (e DecodeError) Unwrap() error { return e.err }

func makeDecodeError(format string, args ...any) DecodeError {
	return DecodeError{err: fmt.Errorf(format, args...)}
}

var (
	ErrNotEnoughData = errors.New("not enough data")
	ErrTrailingBytes = errors.New("trailing bytes")
)

// CatchPanics converts a codec panic into an error. Any other panic is re-raised.
func CatchPanics(r any) error {
	if r == nil {
		return nil
	}

	err, ok := r.(error)
	if !ok {
		panic(r)
	}

	if errors.As(err, &encodeError{}) || errors.As(err, &DecodeError{}) {
		return err
	}

	panic(r)
}

// IsDecodeError reports whether err came from decoding malformed input.
func IsDecodeError(err error) bool {
	return errors.As(err, &DecodeError{})
}
