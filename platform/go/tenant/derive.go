package tenant

import (
	"strings"
)

// Placeholders recognized by BuildDatabaseURL in the tenant DSN template.
const (
	ServerPlaceholder   = "{server}"
	DatabasePlaceholder = "{database}"
)

// BuildDatabaseURL expands the configured tenant DSN template with the
// tenant's database location, e.g.
// "postgres://app:secret@{server}/{database}?sslmode=require".
func BuildDatabaseURL(template string, rec Record) string {
	url := strings.ReplaceAll(template, ServerPlaceholder, rec.DatabaseServer)
	return strings.ReplaceAll(url, DatabasePlaceholder, rec.DatabaseName)
}
