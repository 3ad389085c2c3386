// Package digitsum splits a number into its decimal digits and sums them,
// keeping the running total for every digit so callers can show each step.
// Compute is pure: the same input always yields the same Result.
package digitsum
