package rfc7234

import (
	"time"

	"github.com/fenwicklabs/proxycache/httpmsg"
)

// ResponseCacheInfo carries everything the connection driver needs to
// decide whether, and for how long, a response may be served from the
// cache. FreshnessLifetime is the zero value when none of s-maxage,
// max-age, Expires, or a Last-Modified-derived heuristic could be
// computed — such a response is treated as immediately stale.
type ResponseCacheInfo struct {
	DateValue           time.Time
	RequestTime         time.Time
	ResponseTime        time.Time
	LastModified        time.Time
	HasLastModified     bool
	CorrectedInitialAge time.Duration
	FreshnessLifetime   time.Duration
	ETag                string
	NoCache             bool
	NoStore             bool
	Private             bool
}

// CurrentAge computes RFC 7234 §4.2.3's current_age as of now.
func (ci ResponseCacheInfo) CurrentAge() time.Duration {
	residentTime := time.Since(ci.ResponseTime)
	return ci.CorrectedInitialAge + residentTime
}

// Expired reports whether the entry's current age has reached or passed
// its freshness lifetime.
func (ci ResponseCacheInfo) Expired() bool {
	return ci.CurrentAge() >= ci.FreshnessLifetime
}

// RequestCacheInfo carries the subset of a client request relevant to
// cache decisions and to building a conditional revalidation request.
type RequestCacheInfo struct {
	IfModifiedSince    time.Time
	HasIfModifiedSince bool
	IfNoneMatch        string
	NoCache            bool
	// IgnoredDirectives lists any of max-age, max-stale, min-fresh, and
	// only-if-cached present on the request's Cache-Control header. They are
	// parsed for observability only: honoring them would require serving
	// stale responses, which is out of scope, so they never influence the
	// cache decision below.
	IgnoredDirectives []string
}

// ParseResponseCacheInfo walks msg's headers once, extracting Age,
// Cache-Control, Date, Etag, Expires, and Last-Modified. It returns false
// (not cacheable) if no Date header could be parsed — matching RFC 7234's
// requirement that a cache cannot compute the age of a response without it.
// Any individual field's parse error is swallowed and that field is
// treated as absent, exactly as the reference parser does.
func ParseResponseCacheInfo(msg *httpmsg.Message, requestTime, responseTime time.Time) (ResponseCacheInfo, bool) {
	var ci ResponseCacheInfo
	var ageValue time.Duration
	var cacheControlHeader string
	var expires time.Time
	var hasExpires, hasDate bool

	for _, h := range msg.Headers {
		switch h.Key {
		case "Age":
			if d, err := ParseDeltaSeconds(h.Value); err == nil {
				ageValue = d
			}
		case "Cache-Control":
			cacheControlHeader = h.Value
		case "Date":
			if t, err := ParseHTTPDate(h.Value); err == nil {
				ci.DateValue = t
				hasDate = true
			}
		case "Etag":
			ci.ETag = h.Value
		case "Expires":
			if t, err := ParseHTTPDate(h.Value); err == nil {
				expires = t
				hasExpires = true
			}
		case "Last-Modified":
			if t, err := ParseHTTPDate(h.Value); err == nil {
				ci.LastModified = t
				ci.HasLastModified = true
			}
		}
	}

	if !hasDate {
		return ResponseCacheInfo{}, false
	}

	ci.RequestTime = requestTime
	ci.ResponseTime = responseTime

	apparentAge := responseTime.Sub(ci.DateValue)
	if apparentAge < 0 {
		apparentAge = 0
	}
	responseDelay := responseTime.Sub(requestTime)
	correctedAgeValue := ageValue + responseDelay
	ci.CorrectedInitialAge = maxDuration(apparentAge, correctedAgeValue)

	cc := ParseCacheControl(cacheControlHeader)
	ci.NoCache = cc.Has("no-cache")
	ci.NoStore = cc.Has("no-store")
	ci.Private = cc.Has("private")

	switch {
	case hasDuration(cc, "s-maxage"):
		ci.FreshnessLifetime, _ = cc.Duration("s-maxage")
	case hasDuration(cc, "max-age"):
		ci.FreshnessLifetime, _ = cc.Duration("max-age")
	case hasExpires:
		ci.FreshnessLifetime = expires.Sub(ci.DateValue)
	case ci.HasLastModified:
		ci.FreshnessLifetime = time.Since(ci.LastModified) / 10
	default:
		ci.FreshnessLifetime = 0
	}

	return ci, true
}

func hasDuration(cc CacheControl, directive string) bool {
	_, ok := cc.Duration(directive)
	return ok
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// requestObservabilityDirectives are recognized and recorded but never
// affect the cache decision (see RequestCacheInfo.IgnoredDirectives).
var requestObservabilityDirectives = []string{"max-age", "max-stale", "min-fresh", "only-if-cached"}

// ParseRequestCacheInfo walks msg's headers once, extracting
// If-Modified-Since, If-None-Match, and the request-side Cache-Control
// no-cache directive. The reference (and this implementation) deliberately
// ignores the request-side max-age/max-stale/min-fresh/only-if-cached
// directives for decision-making: honoring them would require serving
// stale responses, which is out of scope. They are still recorded in
// IgnoredDirectives so the connection driver can log them for visibility.
func ParseRequestCacheInfo(msg *httpmsg.Message) RequestCacheInfo {
	var ci RequestCacheInfo
	for _, h := range msg.Headers {
		switch h.Key {
		case "Cache-Control":
			cc := ParseCacheControl(h.Value)
			ci.NoCache = cc.Has("no-cache")
			for _, d := range requestObservabilityDirectives {
				if cc.Has(d) {
					ci.IgnoredDirectives = append(ci.IgnoredDirectives, d)
				}
			}
		case "If-Modified-Since":
			if t, err := ParseHTTPDate(h.Value); err == nil {
				ci.IfModifiedSince = t
				ci.HasIfModifiedSince = true
			}
		case "If-None-Match":
			ci.IfNoneMatch = h.Value
		}
	}
	return ci
}

const maxCacheableBodySize = 2 * 1024 * 1024 // 2 MiB

// Cacheable implements the cacheability test: GET method, status 200 or
// 304, body no larger than maxCacheableBodySize, a parseable Date (already
// reflected in ok), and neither no-store nor private set. It returns a
// human-readable reason when the answer is false, suitable for direct use
// in a log line.
func Cacheable(method, status string, bodyLen int, ci ResponseCacheInfo, ok bool) (bool, string) {
	if method != "GET" {
		return false, "not cachable because request method is " + method
	}
	if status != "200" && status != "304" {
		return false, "not cachable because status code is " + status
	}
	if bodyLen > maxCacheableBodySize {
		return false, "not cachable because body size is larger than 2097152"
	}
	if !ok {
		return false, "not cachable because the response does not have a Date field"
	}
	if ci.NoStore || ci.Private {
		return false, "not cachable because no-store and/or private is set in Cache-Control"
	}
	return true, ""
}
