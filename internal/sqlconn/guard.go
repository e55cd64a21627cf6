package sqlconn

import (
	"fmt"
	"regexp"
	"strings"

	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
)

var writeKeyword = regexp.MustCompile(`(?i)\b(drop|alter|delete|update|insert|merge|truncate|create|grant|revoke|attach|detach|vacuum|copy|optimize)\b`)

// CheckReadOnly rejects statements that could modify data. It is a keyword
// screen, not a parser: it refuses some harmless statements whose string
// literals contain these words.
func CheckReadOnly(statement string) error {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(statement), ";"))
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("multiple statements are not allowed: %w", talkErrors.ErrQueryRejected)
	}
	if m := writeKeyword.FindString(trimmed); m != "" {
		return fmt.Errorf("only SELECT queries are allowed (found %q): %w", strings.ToUpper(m), talkErrors.ErrQueryRejected)
	}
	return nil
}
