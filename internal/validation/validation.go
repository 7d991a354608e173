// Package validation provides request validation for the ledgerlens API.
package validation

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/ledgerlens/internal/ledger"
)

// MaxRequestSize is the maximum request body size (64KB)
const MaxRequestSize = 64 << 10

// MaxAddressLength bounds an "address:tag" id; classic addresses are at
// most 35 characters and tags at most 10 digits.
const MaxAddressLength = 46

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeAddress trims whitespace and null bytes and caps the length.
func SanitizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.ReplaceAll(addr, "\x00", "")
	if len(addr) > MaxAddressLength {
		addr = addr[:MaxAddressLength]
	}
	return addr
}

// IsValidAccountID reports whether id is a checksummed classic address,
// optionally followed by ":tag".
func IsValidAccountID(id string) bool {
	addr, _, tagged := ledger.SplitTag(id)
	if !tagged && strings.Contains(id, ":") {
		return false
	}
	return ledger.ValidAddress(addr)
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAccount checks if a field is a valid ledger account id
func ValidAccount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAccountID(value) {
			return &ValidationError{Field: field, Message: "must be a valid classic address (r...), optionally with :tag"}
		}
		return nil
	}
}

// IntRange checks 0 <= value <= max. Zero means "use the default".
func IntRange(field string, value, max int) func() *ValidationError {
	return func() *ValidationError {
		if value < 0 || value > max {
			return &ValidationError{Field: field, Message: fmt.Sprintf("must be between 0 and %d", max)}
		}
		return nil
	}
}

// AddressParamMiddleware validates the :address URL parameter on routes that use it.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr != "" && !IsValidAccountID(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid classic address (r...), optionally with :tag",
			})
			return
		}
		c.Next()
	}
}
