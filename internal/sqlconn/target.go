package sqlconn

import (
	"fmt"
	"strings"

	talkErrors "github.com/harunnryd/tabletalk/internal/errors"
)

// Target names the single table a session talks about.
type Target struct {
	DB     string
	Schema string
	Table  string
}

// ParseTarget accepts "db.schema.table", "schema.table" or "table".
func ParseTarget(s string) (Target, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Target{}, talkErrors.InvalidInput(fmt.Sprintf("invalid table reference %q", s))
		}
	}

	switch len(parts) {
	case 1:
		return Target{Table: parts[0]}, nil
	case 2:
		return Target{Schema: parts[0], Table: parts[1]}, nil
	case 3:
		return Target{DB: parts[0], Schema: parts[1], Table: parts[2]}, nil
	default:
		return Target{}, talkErrors.InvalidInput(fmt.Sprintf("invalid table reference %q", s))
	}
}

// Missing lists the unset parts among those named in required.
func (t Target) Missing(required ...string) []string {
	var missing []string
	for _, part := range required {
		var v string
		switch part {
		case "db":
			v = t.DB
		case "schema":
			v = t.Schema
		case "table":
			v = t.Table
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, part)
		}
	}
	return missing
}

func (t Target) String() string {
	var parts []string
	for _, p := range []string{t.DB, t.Schema, t.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}
