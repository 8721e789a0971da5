package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// IdentifierColumn is the single header of the hand-off spreadsheet.
const IdentifierColumn = "Numero_Tombamento"

// IdentifierPattern matches an asset identifier anywhere in free text:
// five digits, dot, three digits, dot, three digits.
var IdentifierPattern = regexp.MustCompile(`\d{5}\.\d{3}\.\d{3}`)

var identifierExact = regexp.MustCompile(`^\d{5}\.\d{3}\.\d{3}$`)

// Identifier is an asset (tombamento) number such as 00123.456.789.
type Identifier string

func (id Identifier) String() string {
	return string(id)
}

// ParseIdentifier trims s and validates it against the identifier shape.
func ParseIdentifier(s string) (Identifier, error) {
	v := strings.TrimSpace(s)
	if !identifierExact.MatchString(v) {
		return "", fmt.Errorf("%w: %q is not a valid identifier", ErrInvalidInput, s)
	}
	return Identifier(v), nil
}
