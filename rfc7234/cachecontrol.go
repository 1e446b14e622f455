package rfc7234

import (
	"strings"
	"time"
)

// CacheControl is a parsed Cache-Control header: a set of directive tokens,
// each with an optional argument.
type CacheControl struct {
	directives map[string]string
}

// ParseCacheControl tokenizes a Cache-Control header value into
// comma-separated directives, trimming the leading whitespace each
// subsequent token carries after its comma.
func ParseCacheControl(header string) CacheControl {
	cc := CacheControl{directives: make(map[string]string)}
	if header == "" {
		return cc
	}
	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		name, arg, hasArg := strings.Cut(tok, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if hasArg {
			cc.directives[name] = strings.Trim(strings.TrimSpace(arg), `"`)
		} else {
			cc.directives[name] = ""
		}
	}
	return cc
}

// Has reports whether directive is present, regardless of argument.
func (cc CacheControl) Has(directive string) bool {
	_, ok := cc.directives[directive]
	return ok
}

// Duration returns the delta-seconds argument of directive, if present and
// well-formed.
func (cc CacheControl) Duration(directive string) (time.Duration, bool) {
	v, ok := cc.directives[directive]
	if !ok {
		return 0, false
	}
	d, err := ParseDeltaSeconds(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
