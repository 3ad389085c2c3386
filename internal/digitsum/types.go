package digitsum

// Step pairs a digit with the running sum through that digit.
type Step struct {
	Digit   int `json:"digit" yaml:"digit"`
	Partial int `json:"partial" yaml:"partial"`
}

// Result is the successful outcome of a digit sum computation.
// Digits are ordered most-significant first and Steps[i].Partial is the sum
// of Digits[0..i], so the last step always equals Sum.
type Result struct {
	OriginalInput         string `json:"originalInput" yaml:"originalInput"`
	Digits                []int  `json:"digits" yaml:"digits"`
	Steps                 []Step `json:"steps" yaml:"steps"`
	Sum                   int    `json:"sum" yaml:"sum"`
	CalculationExpression string `json:"calculationExpression" yaml:"calculationExpression"`
}

// Failure is what callers show when the input is not a number.
type Failure struct {
	Error string `json:"error" yaml:"error"`
}

// Calculator describes the behaviour required from a digit sum calculator.
type Calculator interface {
	Compute(input string) (Result, error)
}
