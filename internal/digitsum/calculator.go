package digitsum

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpressionSeparator joins digits in Result.CalculationExpression.
const ExpressionSeparator = " + "

type digitSumCalculator struct{}

// New returns the default Calculator.
func New() Calculator {
	return digitSumCalculator{}
}

func (digitSumCalculator) Compute(input string) (Result, error) {
	return Compute(input)
}

// Compute parses input, drops its sign and fractional part, and sums the
// decimal digits of what remains. Invalid input yields an error wrapping
// ErrInvalidInput; Compute never panics.
func Compute(input string) (Result, error) {
	magnitude, ok := integerPart(input)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidInput, input)
	}

	digits := make([]int, len(magnitude))
	for i := range len(magnitude) {
		digits[i] = int(magnitude[i] - '0')
	}

	steps := make([]Step, len(digits))
	sum := 0
	for i, d := range digits {
		sum += d
		steps[i] = Step{Digit: d, Partial: sum}
	}

	return Result{
		OriginalInput:         input,
		Digits:                digits,
		Steps:                 steps,
		Sum:                   sum,
		CalculationExpression: Expression(digits),
	}, nil
}

// Expression renders digits joined by ExpressionSeparator.
func Expression(digits []int) string {
	parts := make([]string, len(digits))
	for i, d := range digits {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ExpressionSeparator)
}
