package workflow

import (
	"fmt"
	"strings"
)

// Mode selects how query text is interpreted.
type Mode string

const (
	// ModeSQL runs the text as literal SQL.
	ModeSQL Mode = "sql"
	// ModeAsk turns a natural-language question into SQL first.
	ModeAsk Mode = "ask"
)

// ParseMode accepts "sql" and "ask". Empty means sql.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSQL:
		return ModeSQL, nil
	case ModeAsk:
		return ModeAsk, nil
	default:
		return "", fmt.Errorf("unknown query mode %q (want sql or ask)", s)
	}
}
