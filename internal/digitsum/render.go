package digitsum

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Describe explains how step i was reached given the partial sum before it.
func (s Step) Describe(i, previous int) string {
	if i == 0 {
		return fmt.Sprintf("Start with %d", s.Digit)
	}
	return fmt.Sprintf("Add %d (%d + %d)", s.Digit, previous, s.Digit)
}

// StepDescriptions returns one line per step, e.g. "Add 2 (1 + 2) = 3".
func (r Result) StepDescriptions() []string {
	lines := make([]string, len(r.Steps))
	previous := 0
	for i, step := range r.Steps {
		lines[i] = fmt.Sprintf("%s = %d", step.Describe(i, previous), step.Partial)
		previous = step.Partial
	}
	return lines
}

// WriteText writes a plain-text report of r.
func WriteText(w io.Writer, r Result) error {
	var b strings.Builder

	digits := make([]string, len(r.Digits))
	for i, d := range r.Digits {
		digits[i] = strconv.Itoa(d)
	}
	fmt.Fprintf(&b, "Digits: %s\n", strings.Join(digits, " "))

	b.WriteString("Steps:\n")
	for i, line := range r.StepDescriptions() {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, line)
	}

	fmt.Fprintf(&b, "Calculation: %s = %d\n", r.CalculationExpression, r.Sum)
	fmt.Fprintf(&b, "Sum of digits of %s is: %d\n", r.OriginalInput, r.Sum)

	_, err := io.WriteString(w, b.String())
	return err
}
