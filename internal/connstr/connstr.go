// Package connstr builds the ODBC connection string handed to the SQL bridge
// subprocess and masks credentials before they reach logs or the browser.
package connstr

import (
	"fmt"
	"regexp"
	"strings"
)

// Fixed driver and security parameters. These are not configurable.
const (
	Driver            = "ODBC Driver 18 for SQL Server"
	Port              = 1433
	ConnectionTimeout = 30
)

// Params holds the four credential fields entered by the user.
// Raw, when set, is used verbatim instead of building from the fields.
type Params struct {
	Server   string
	Database string
	Username string
	Password string
	Raw      string
}

// MissingFieldsError reports which required credential fields are empty.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}

// Validate checks that either a raw connection string or all four fields are present.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Raw) != "" {
		return nil
	}
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"server", p.Server},
		{"database", p.Database},
		{"username", p.Username},
		{"password", p.Password},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// Equal reports whether two parameter sets produce the same connection.
func (p Params) Equal(o Params) bool {
	return p == o
}

// String returns the connection string for p: Raw when provided, otherwise Build.
func (p Params) String() string {
	if raw := strings.TrimSpace(p.Raw); raw != "" {
		return raw
	}
	return Build(p.Server, p.Database, p.Username, p.Password)
}

// Build renders the connection string. It is a pure function of its inputs:
// fields are emitted in fixed order followed by the fixed security parameters.
func Build(server, database, username, password string) string {
	var b strings.Builder
	b.WriteString("Driver={" + Driver + "};")
	fmt.Fprintf(&b, "Server=%s,%d;", quote(server), Port)
	b.WriteString("Database=" + quote(database) + ";")
	b.WriteString("Uid=" + quote(username) + ";")
	b.WriteString("Pwd=" + quote(password) + ";")
	b.WriteString("Encrypt=yes;")
	b.WriteString("TrustServerCertificate=no;")
	fmt.Fprintf(&b, "Connection Timeout=%d;", ConnectionTimeout)
	return b.String()
}

// quote brace-wraps values that ODBC would otherwise split or trim.
// A closing brace inside a braced value is escaped by doubling it.
func quote(v string) string {
	if !strings.ContainsAny(v, ";{}") && strings.TrimSpace(v) == v {
		return v
	}
	return "{" + strings.ReplaceAll(v, "}", "}}") + "}"
}

var (
	rePwd       = regexp.MustCompile(`(?i)(pwd=|password=)(\{(?:[^}]|\}\})*\}|[^;]*)`)
	reURLSecret = regexp.MustCompile(`(://[^:/@]+):([^@]+)@`)
)

// Mask replaces password values in ODBC and URL-style connection strings.
func Mask(s string) string {
	out := rePwd.ReplaceAllString(s, "${1}***")
	return reURLSecret.ReplaceAllString(out, "$1:***@")
}
