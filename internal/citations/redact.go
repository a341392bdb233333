package citations

import (
	"net/url"
	"regexp"
	"strings"
)

var sensitiveParamRe = regexp.MustCompile(`(?i)token|key|api_key|access_token|auth|session|password`)

// Redact strips userinfo and replaces the values of query parameters whose
// names look like credentials with [REDACTED] (spec.md §4.7).
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil

	if u.RawQuery != "" {
		q := u.Query()
		for key, vals := range q {
			if sensitiveParamRe.MatchString(key) {
				for i := range vals {
					vals[i] = "[REDACTED]"
				}
				q[key] = vals
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactText redacts every http(s) URL found embedded in free text (e.g.
// error messages that echo back a fetch target).
func RedactText(text string) string {
	return urlTokenRe.ReplaceAllStringFunc(text, func(tok string) string {
		clean := trailingPunct.ReplaceAllString(tok, "")
		suffix := strings.TrimPrefix(tok, clean)
		return Redact(clean) + suffix
	})
}
