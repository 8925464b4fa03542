// Package sanitize redacts credential material from device output before it
// is stored in the audit/execution logs or returned over the API.
//
// Rules are ordered most-specific first; the generic end-of-line password
// rule runs last and refuses to match an already-redacted token, which keeps
// Sanitize idempotent. Only the credential substring is replaced; the
// directive prefix, whitespace, and line boundaries are preserved.
package sanitize

import "regexp"

// Redacted is the literal token substituted for credential material.
const Redacted = "***REDACTED***"

type rule struct {
	re *regexp.Regexp
	// repl keeps the directive prefix via capture groups.
	repl string
}

var rules = []rule{
	// Type-7 and type-5/8/9 hashed secrets.
	{regexp.MustCompile(`(?i)(password 7 )\S+`), "${1}" + Redacted},
	{regexp.MustCompile(`(?i)(secret [589] )\S+`), "${1}" + Redacted},

	// SNMP community strings.
	{regexp.MustCompile(`(?i)(snmp-server community )\S+`), "${1}" + Redacted},

	// IPsec / keychain material.
	{regexp.MustCompile(`(?i)(pre-shared-key )\S+`), "${1}" + Redacted},
	{regexp.MustCompile(`(?i)(key-string )\S+`), "${1}" + Redacted},
	{regexp.MustCompile(`(?i)(server-private \S+ key )\S+`), "${1}" + Redacted},

	// NTP authentication keys. Runs before the bare "key 7" rule so that
	// an NTP key numbered 7 is not half-matched by it.
	{regexp.MustCompile(`(?i)(ntp authentication-key \d+ md5 )\S+`), "${1}" + Redacted},

	// Bare type-7 keys. Anchored to line start so "authentication-key 7"
	// style directives are left to their own rules.
	{regexp.MustCompile(`(?im)(^\s*key 7 )\S+`), "${1}" + Redacted},

	// Enable secrets and local user credentials.
	{regexp.MustCompile(`(?i)(enable secret (?:\d+ )?)\S+`), "${1}" + Redacted},
	{regexp.MustCompile(`(?i)(username \S+ (?:password|secret) (?:\d+ )?)\S+`), "${1}" + Redacted},

	// Catch-all: a bare password at end of line. Must not re-match a token
	// that an earlier rule already replaced.
	{regexp.MustCompile(`(?im)(password )(?:[^*\s]\S*)$`), "${1}" + Redacted},
}

// Sanitize replaces credential material in text with the redaction token.
// Idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return text
}
