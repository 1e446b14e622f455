// Package rfc7234 implements the cache-policy calculations of RFC 7234
// §4 (constructing responses from caches) and the surrounding definitions
// needed by the connection driver: IMF-fixdate parsing, delta-second
// parsing, Cache-Control tokenizing, age/freshness arithmetic, and the
// ResponseCacheInfo/RequestCacheInfo extraction that feeds the proxy's
// caching decision.
package rfc7234

import (
	"errors"
	"math"
	"strconv"
	"time"
)

// httpDateLayout is the IMF-fixdate format mandated for HTTP date fields,
// always in GMT/UTC.
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

var errInvalidDate = errors.New("rfc7234: invalid HTTP date")

// ParseHTTPDate parses an IMF-fixdate timestamp such as
// "Wed, 28 Feb 2018 20:51:55 GMT". Any other format is rejected; the
// reference parser does not attempt the two legacy RFC 850 / asctime
// formats HTTP historically tolerated, and neither does this one.
func ParseHTTPDate(s string) (time.Time, error) {
	t, err := time.Parse(httpDateLayout, s)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return t.UTC(), nil
}

// FormatHTTPDate renders t as an IMF-fixdate timestamp in UTC.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(httpDateLayout)
}

// deltaSecondsSentinel is the clamp applied to a delta-seconds value that
// would otherwise overflow. RFC 7234 prescribes treating values beyond a
// cache's representable range as effectively infinite; this implementation
// resolves the reference's "throws instead" open question by clamping to a
// large finite sentinel rather than failing the parse.
const deltaSecondsSentinel = math.MaxInt32

// ParseDeltaSeconds parses an unsigned decimal delta-seconds value (used by
// Age, max-age, and s-maxage). Values that would overflow a 32-bit count are
// clamped to deltaSecondsSentinel seconds instead of failing.
func ParseDeltaSeconds(s string) (time.Duration, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, errors.New("rfc7234: invalid delta-seconds")
	}
	if n > deltaSecondsSentinel {
		n = deltaSecondsSentinel
	}
	return time.Duration(n) * time.Second, nil
}
