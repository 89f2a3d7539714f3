// Package config handles es2json.yaml loading for the dump command.
package config

import (
	"os"
	"regexp"
	"strings"
)

// placeholder matches ${NAME} and ${NAME:-fallback}. A doubled "$$" in front
// escapes it, so "$${NAME}" is kept as the literal "${NAME}".
var placeholder = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

// ExpandEnv substitutes environment placeholders in the raw es2json.yaml
// text before it is decoded. Connection hosts, archive paths and notify
// credentials are the usual targets:
//
//	connection:
//	  host: ${ES_HOST:-localhost}
//	archive:
//	  path: ${ES2JSON_ARCHIVE:-./harvests}
//	notify:
//	  webhook:
//	    headers:
//	      Authorization: Bearer ${HOOK_TOKEN}
//
// A variable that is unset or empty takes its fallback, or expands to
// nothing when there is none. Validate and the notify adapters reject the
// fields that must not end up empty.
func ExpandEnv(input string) string {
	return placeholder.ReplaceAllStringFunc(input, func(m string) string {
		if strings.HasPrefix(m, "$$") {
			return m[1:]
		}
		sub := placeholder.FindStringSubmatch(m)
		if v := os.Getenv(sub[1]); v != "" {
			return v
		}
		return strings.TrimPrefix(sub[2], ":-")
	})
}
