package digitsum

import "errors"

// FailureMessage is the fixed message reported for any invalid input.
const FailureMessage = "Please enter a valid number"

// ErrInvalidInput is returned when the input is empty or not numeric.
var ErrInvalidInput = errors.New("invalid number")

// AsFailure converts an error wrapping ErrInvalidInput into a Failure.
// The second return value is false for any other error.
func AsFailure(err error) (Failure, bool) {
	if !errors.Is(err, ErrInvalidInput) {
		return Failure{}, false
	}
	return Failure{Error: FailureMessage}, true
}
