package source

import (
	"net/url"
	"strings"
)

// HostRule rewrites image URLs served from a known preview host to the
// host that serves the original file.
type HostRule struct {
	From       string `yaml:"from"`
	To         string `yaml:"to"`
	StripQuery bool   `yaml:"strip_query"`
}

// DefaultHostRules returns the built-in rewrite rules.
func DefaultHostRules() []HostRule {
	return []HostRule{
		{From: "preview.redd.it", To: "i.redd.it", StripQuery: true},
	}
}

// NormalizeURL applies the first matching rule to raw. URLs that do not
// parse or match no rule are returned unchanged.
func NormalizeURL(raw string, rules []HostRule) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}

	for _, rule := range rules {
		if !strings.EqualFold(u.Hostname(), rule.From) {
			continue
		}
		host := rule.To
		if port := u.Port(); port != "" {
			host += ":" + port
		}
		u.Host = host
		if rule.StripQuery {
			u.RawQuery = ""
			u.ForceQuery = false
		}
		return u.String()
	}
	return raw
}
