// Package citations implements URL extraction, normalization,
// fingerprinting, and the online/offline validation ladder described in
// spec.md §4.7. The HTTP fetch shape (timeout, 2 MiB body cap, markdown
// conversion) is grounded on
// theRebelliousNerd-codenerd/internal/tools/research/web_fetch.go.
package citations

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"

	"researchrun/internal/toolsurface"
)

var urlTokenRe = regexp.MustCompile(`https?://[^\s)\]]+`)
var trailingPunct = regexp.MustCompile(`[.,;:!?'")\]]+$`)

// ExtractURLs scans markdown for https?:// tokens, trims trailing
// punctuation, and keeps only tokens that parse as valid absolute http(s)
// URLs.
func ExtractURLs(markdown string) []string {
	var out []string
	for _, tok := range urlTokenRe.FindAllString(markdown, -1) {
		tok = trailingPunct.ReplaceAllString(tok, "")
		u, err := url.Parse(tok)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		out = append(out, tok)
	}
	return out
}

var trackingParamPrefixes = []string{"utm_"}
var trackingParamExact = map[string]bool{"gclid": true, "fbclid": true}

// Normalize applies spec.md §4.7's normalization rules: lowercase
// scheme/host, strip default ports, strip a trailing slash on non-root
// paths, drop utm_*/gclid/fbclid query params, sort remaining pairs by
// (key, value), and percent-encode per WHATWG via net/url's own encoder.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", toolsurface.NewError(toolsurface.CodeInvalidArgs, "malformed URL: "+err.Error(), nil)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", toolsurface.NewError(toolsurface.CodeInvalidArgs, "only http/https URLs are allowed", nil)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host, port := splitHostPort(u.Host)
	host = strings.ToLower(host)
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lower := strings.ToLower(key)
			if trackingParamExact[lower] {
				q.Del(key)
				continue
			}
			for _, prefix := range trackingParamPrefixes {
				if strings.HasPrefix(lower, prefix) {
					q.Del(key)
					break
				}
			}
		}
		u.RawQuery = encodeSortedQuery(q)
	}

	u.Fragment = ""
	u.User = nil

	return u.String(), nil
}

func splitHostPort(hostport string) (host, port string) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport, ""
	}
	// Guard against bare IPv6 literals like "[::1]" with no port.
	if strings.Contains(hostport[idx:], "]") {
		return hostport, ""
	}
	return hostport[:idx], hostport[idx+1:]
}

func encodeSortedQuery(q url.Values) string {
	type pair struct{ k, v string }
	var pairs []pair
	for k, vs := range q {
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}

// Fingerprint computes cid = "cid_" + sha256_hex_lower(normalized_url).
func Fingerprint(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return "cid_" + hex.EncodeToString(sum[:])
}
