package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns ve as an error, or nil when nothing was collected.
func (ve *ValidationErrors) Err() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// ValidateDate checks a field is a valid date (YYYY-MM-DD).
func ValidateDate(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	_, err := time.Parse("2006-01-02", value)
	if err != nil {
		ve.Add(field, "must be a valid date (YYYY-MM-DD)")
	}
}

// ValidateIntRange checks a field is within a specified range.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// Maximum value constants to prevent overflow and ensure reasonable limits.
var (
	MaxQuantity = decimal.NewFromInt(1000000)
	MaxPrice    = decimal.NewFromInt(100000000)
)

const (
	MaxStringLength = 10000
	MaxPaymentTerms = 365
)

// ValidatePositiveQty checks a quantity is > 0 and within MaxQuantity.
func ValidatePositiveQty(ve *ValidationErrors, field string, value decimal.Decimal) {
	if !value.IsPositive() {
		ve.Add(field, "must be a positive number")
		return
	}
	if value.GreaterThan(MaxQuantity) {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed quantity of %s", MaxQuantity))
	}
	if value.Exponent() < -3 {
		ve.Add(field, "must have at most 3 decimal places")
	}
}

// ValidatePrice checks a price is >= 0 and within MaxPrice.
func ValidatePrice(ve *ValidationErrors, field string, value decimal.Decimal) {
	if value.IsNegative() {
		ve.Add(field, "must be non-negative")
		return
	}
	if value.GreaterThan(MaxPrice) {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed price of %s", MaxPrice))
	}
}

// ValidatePercentage checks a value is a valid percentage (0-100).
func ValidatePercentage(ve *ValidationErrors, field string, value decimal.Decimal) {
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		ve.Add(field, "must be between 0 and 100")
	}
}

// ValidateRate checks a fractional rate is within 0..1.
func ValidateRate(ve *ValidationErrors, field string, value decimal.Decimal) {
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(1)) {
		ve.Add(field, "must be between 0 and 1")
	}
}

// ValidateEmail checks a field is a valid email (if non-empty).
func ValidateEmail(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	_, err := mail.ParseAddress(value)
	if err != nil {
		ve.Add(field, "must be a valid email address")
	}
}

// ValidateMaxLength checks string doesn't exceed max length.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// CodePattern matches product codes and heat numbers (letters, numbers, -_./).
var CodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_./]*$`)

// ValidateCode validates a product code or similar identifier.
func ValidateCode(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !CodePattern.MatchString(value) || len(value) > 64 {
		ve.Add(field, "must be up to 64 letters, numbers, hyphens, underscores, dots or slashes")
	}
}
