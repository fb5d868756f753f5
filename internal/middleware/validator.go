package middleware

import (
	"fmt"
	"strconv"
	"unicode"

	domain "github.com/bryanwahyu/scanproof/internal/domain/records"
)

// Input validation and sanitization utilities

// ValidateCorrelationID validates a correlation ID taken from the URL
// path. Same character set as envelope parsing: printable, no
// whitespace, max 128 bytes.
func ValidateCorrelationID(id string) error {
	if id == "" {
		return fmt.Errorf("correlation ID cannot be empty")
	}
	if len(id) > domain.MaxCorrelationIDLen {
		return fmt.Errorf("correlation ID too long (max %d bytes)", domain.MaxCorrelationIDLen)
	}
	for _, r := range id {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return fmt.Errorf("correlation ID contains non-printable or whitespace characters")
		}
	}
	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateOffset validates pagination offset
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// ParsePagination reads offset/limit query values with defaults and caps
func ParsePagination(offsetStr, limitStr string) (int, int) {
	offset, _ := strconv.Atoi(offsetStr)
	limit, _ := strconv.Atoi(limitStr)
	return ValidateOffset(offset), ValidateLimit(limit)
}
