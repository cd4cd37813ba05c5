package crawler

import (
	"net/url"
	"path"
	"strings"
)

// ResolveReference resolves ref against base. An unparsable base or ref yields ref unchanged.
func ResolveReference(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// UpgradeHTTPS rewrites a leading http:// to https://.
func UpgradeHTTPS(raw string) string {
	if strings.HasPrefix(raw, "http://") {
		return "https://" + strings.TrimPrefix(raw, "http://")
	}
	return raw
}

// URLPath returns the path component of raw, or an empty string when it does not parse.
func URLPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

// Basename returns the last path segment of raw, ignoring query and fragment.
func Basename(raw string) string {
	p := URLPath(raw)
	if p == "" {
		return ""
	}
	base := path.Base(p)
	if base == "/" || base == "." {
		return ""
	}
	return base
}
