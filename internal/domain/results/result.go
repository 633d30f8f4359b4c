package results

import "encoding/json"

// Result is either a successful value or an ErrorResult, never both.
type Result[T any] struct {
	value T
	err   *ErrorResult
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail wraps a failure. A nil ErrorResult becomes an unknown error so the
// result can never be mistaken for a success.
func Fail[T any](err *ErrorResult) Result[T] {
	if err == nil {
		err = NewUnknown(nil)
	}
	return Result[T]{err: err}
}

// IsError reports whether the result carries an ErrorResult.
func (r Result[T]) IsError() bool {
	return r.err != nil
}

// Value returns the success value and true, or the zero value and false.
func (r Result[T]) Value() (T, bool) {
	if r.err != nil {
		var zero T
		return zero, false
	}
	return r.value, true
}

// Err returns the ErrorResult, or nil on success.
func (r Result[T]) Err() *ErrorResult {
	return r.err
}

type successEnvelope[T any] struct {
	IsError bool `json:"isError"`
	Data    T    `json:"data"`
}

// MarshalJSON renders success as {"isError":false,"data":...} and failure as
// the ErrorResult itself.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.err != nil {
		return json.Marshal(r.err)
	}
	return json.Marshal(successEnvelope[T]{Data: r.value})
}
