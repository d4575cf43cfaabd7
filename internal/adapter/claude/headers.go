package claude

import (
	"net/http"
	"strings"

	"github.com/seawire/vela/internal/core/constants"
)

// applyHeaders makes the request look like it came from a signed-in browser
// tab: session cookie, matching Origin/Referer and a desktop user agent.
func (c *Client) applyHeaders(req *http.Request, cookie string) {
	endpoint := c.endpoint()
	req.Header.Set(constants.HeaderCookie, cookie)
	req.Header.Set(constants.HeaderOrigin, endpoint)
	req.Header.Set(constants.HeaderReferer, endpoint+"/chats")
	req.Header.Set(constants.HeaderUserAgent, c.cfg.UserAgent)
}

// RefreshCookie folds Set-Cookie response headers into an existing cookie
// string, overriding pairs by name and appending new ones. Order of the
// existing pairs is preserved so the upstream sees a stable cookie shape.
func RefreshCookie(existing string, setCookies []string) string {
	if len(setCookies) == 0 {
		return existing
	}

	type pair struct {
		name  string
		value string
	}

	var pairs []pair
	index := make(map[string]int)
	for _, part := range strings.Split(existing, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		index[name] = len(pairs)
		pairs = append(pairs, pair{name: name, value: value})
	}

	for _, sc := range setCookies {
		// attributes after the first ';' are browser directives, not ours
		head, _, _ := strings.Cut(sc, ";")
		name, value, ok := strings.Cut(strings.TrimSpace(head), "=")
		if !ok || name == "" {
			continue
		}
		if i, exists := index[name]; exists {
			pairs[i].value = value
		} else {
			index[name] = len(pairs)
			pairs = append(pairs, pair{name: name, value: value})
		}
	}

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(p.name)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	return b.String()
}
