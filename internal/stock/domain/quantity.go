package domain

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseError reports a prescription quantity field that could not be read
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse quantity from %q: %s", e.Input, e.Reason)
}

// ParseQuantity extracts a dispense quantity from a free-text prescription
// field such as "2 packs", "x30" or "Qty: 12". The first integer token wins.
// There is deliberately no fallback value: unreadable input is a ParseError,
// not a silent quantity of one.
func ParseQuantity(input string) (int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, &ParseError{Input: input, Reason: "empty value"}
	}

	start := -1
	for i, r := range trimmed {
		if unicode.IsDigit(r) {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			qty, err := strconv.Atoi(trimmed[start:i])
			if err != nil {
				return 0, &ParseError{Input: input, Reason: "number out of range"}
			}
			return validateParsedQuantity(input, qty)
		}
	}

	if start == -1 {
		return 0, &ParseError{Input: input, Reason: "no numeric quantity found"}
	}

	qty, err := strconv.Atoi(trimmed[start:])
	if err != nil {
		return 0, &ParseError{Input: input, Reason: "number out of range"}
	}
	return validateParsedQuantity(input, qty)
}

func validateParsedQuantity(input string, qty int) (int, error) {
	if qty <= 0 {
		return 0, &ParseError{Input: input, Reason: "quantity must be positive"}
	}
	return qty, nil
}
