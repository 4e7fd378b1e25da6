// Package secret masks credentials before they reach logs.
package secret

import (
	"net/url"
	"strings"
)

// Mask hides most of s. Short values are fully masked; longer ones keep
// their first and last characters.
func Mask(s string) string {
	n := len(s)
	switch {
	case n == 0:
		return ""
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
	}
}

// MaskURL masks the password and the sentinel_password query parameter of
// a URL such as redis://user:pw@host/0. Values that are not URLs are
// returned unchanged.
func MaskURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, p := range parts {
			k, v, ok := strings.Cut(p, "=")
			if !ok || k != "sentinel_password" {
				continue
			}
			if dv, err := url.QueryUnescape(v); err == nil {
				v = dv
			}
			parts[i] = k + "=" + Mask(v)
		}
		u.RawQuery = strings.Join(parts, "&")
	}
	// url.Userinfo would percent-encode the mask
	var user string
	if u.User != nil {
		user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			user += ":" + Mask(pw)
		}
		user += "@"
		u.User = nil
	}
	return strings.Replace(u.String(), "://", "://"+user, 1)
}
