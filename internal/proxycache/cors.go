package proxycache

import (
	"net/url"
	"strings"
)

// AllowList holds hostnames allowed for CORS. Subdomains of an entry match too.
type AllowList []string

// ParseAllowList splits a semicolon separated hostname list. Blank entries are dropped.
func ParseAllowList(s string) AllowList {
	var list AllowList
	for _, host := range strings.Split(s, ";") {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			list = append(list, host)
		}
	}
	return list
}

// Allowed reports whether the hostname of origin is, or is below, an allowed hostname.
func (a AllowList) Allowed(origin string) bool {
	if len(a) == 0 || origin == "" {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	for _, allowed := range a {
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}

	return false
}
