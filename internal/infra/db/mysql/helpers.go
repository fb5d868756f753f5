package mysql

import (
	"errors"
	"strings"

	godriver "github.com/go-sql-driver/mysql"
)

const (
	duplicateKeyErrNo = 1062
	foreignKeyErrNo   = 1452
)

// isDuplicateKey reports whether err is a unique constraint violation
func isDuplicateKey(err error) bool {
	var me *godriver.MySQLError
	return errors.As(err, &me) && me.Number == duplicateKeyErrNo
}

// isForeignKeyViolation reports whether err is a missing-parent-row violation
func isForeignKeyViolation(err error) bool {
	var me *godriver.MySQLError
	return errors.As(err, &me) && me.Number == foreignKeyErrNo
}

// escapeLikePattern escapes special characters in LIKE patterns to prevent SQL injection
func escapeLikePattern(s string) string {
	// Escape backslash first, then other LIKE special characters
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
