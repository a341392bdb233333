package citations

import (
	"net"
	"net/url"

	"researchrun/internal/toolsurface"
)

// Preflight rejects URLs the online validation ladder must never dial:
// disallowed schemes, embedded userinfo, and private/link-local/loopback
// addresses, per spec.md §4.7's SSRF preflight step.
func Preflight(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return toolsurface.NewError(toolsurface.CodeInvalidArgs, "malformed URL: "+err.Error(), nil)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return toolsurface.NewError(toolsurface.CodeInvalidArgs, "disallowed scheme "+u.Scheme, nil)
	}
	if u.User != nil {
		return toolsurface.NewError(toolsurface.CodeInvalidArgs, "URL carries embedded credentials", nil)
	}

	host := u.Hostname()
	ips, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable host: let the direct-fetch step surface the real
		// DNS error rather than misclassifying it as SSRF here.
		return nil
	}
	for _, ip := range ips {
		if isDisallowedIP(ip) {
			return toolsurface.NewError(toolsurface.CodeInvalidArgs, "URL resolves to a disallowed address", nil)
		}
	}
	return nil
}

func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified()
}
