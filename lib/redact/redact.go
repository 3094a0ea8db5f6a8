package redact

import "regexp"

// matches `key=<value>` where the value runs until the next `&` or whitespace
var keyParam = regexp.MustCompile(`(key=)[^&\s]+`)

// Redact masks credential values embedded in a string. Anything of the form
// `key=<value>` has its value replaced with `***`; the rest of the string is
// untouched. Every URL must pass through here before being logged, since logs
// may be shipped off-host.
func Redact(s string) string {
	return keyParam.ReplaceAllString(s, "${1}***")
}
