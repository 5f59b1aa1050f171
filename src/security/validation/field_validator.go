// backend/src/security/validation/field_validator.go
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

// Constants for lengths remain here
const (
	DefaultMaxStringLength = 255
	MaxLabelLength         = 255
	MaxOrderNumberLength   = 255
	MaxCommentLength       = 1000
	MaxNameLength          = 255
)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// --- Amount Validator ---

// ValidateAmountString parses a decimal amount and requires it to be strictly positive.
// Returns the amount normalized to two decimal places.
func ValidateAmountString(s, fieldName string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return "", err
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(trimmed, ",", "."))
	if err != nil {
		return "", fmt.Errorf("%w: %s ('%s') is not a valid decimal amount", ErrValidationFailed, fieldName, s)
	}
	if d.Sign() <= 0 {
		return "", fmt.Errorf("%w: %s must be positive", ErrValidationFailed, fieldName)
	}
	return d.StringFixed(2), nil
}

// --- Date Validators ---

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateDateString checks if a string is a valid calendar date in "YYYY-MM-DD" format.
func ValidateDateString(s, fieldName string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return time.Time{}, err
	}
	if !dateRegex.MatchString(trimmed) {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected YYYY-MM-DD)", ErrValidationFailed, fieldName, s)
	}
	t, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected YYYY-MM-DD): %v", ErrValidationFailed, fieldName, s, err)
	}
	if t.Format("2006-01-02") != trimmed {
		return time.Time{}, fmt.Errorf("%w: %s ('%s') is an invalid date (e.g., day/month mismatch)", ErrValidationFailed, fieldName, s)
	}
	return t, nil
}

// ValidateDateRange parses a from/to pair and requires from <= to.
func ValidateDateRange(fromStr, toStr string) (from, to time.Time, err error) {
	from, err = ValidateDateString(fromStr, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err = ValidateDateString(toStr, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: 'from' date must not be after 'to' date", ErrValidationFailed)
	}
	return from, to, nil
}

// --- Specific Format Validators ---

var (
	emailRegex         = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	accountNumberRegex = regexp.MustCompile(`^[0-9]{5,34}$`)
)

// ValidateEmail checks if a string is a plausible e-mail address.
func ValidateEmail(s string) error {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, "Email"); err != nil {
		return err
	}
	if !emailRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: invalid email format", ErrValidationFailed)
	}
	return nil
}

// ValidateAccountNumber checks the format of a bank account number. Empty is allowed
// (cash/card accounts have none).
func ValidateAccountNumber(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return ValidateStringRegex(trimmed, accountNumberRegex, "Account Number", "5-34 digits")
}
