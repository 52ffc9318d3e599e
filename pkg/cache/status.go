package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// indicatorHeaders are checked in order for a hit or miss marker.
var indicatorHeaders = []string{
	"X-Cache",
	"X-Cache-Status",
	"CF-Cache-Status", // Cloudflare
	"X-Fastly-Cache",  // Fastly
	"X-Varnish-Cache", // Varnish
	"X-Proxy-Cache",   // nginx
	"X-Served-By",
}

var (
	hitIndicators  = []string{"hit", "cached", "stale", "revalidated", "updating"}
	missIndicators = []string{"miss", "expired", "bypass", "dynamic", "pass"}
)

// Status is the cache state of a single response.
type Status struct {
	// Hit is true when an upstream cache served the response.
	Hit bool

	// Known is false when no header told hit from miss.
	Known bool

	// Source is the header the verdict came from.
	Source string

	// Age is the Age header, 0 when absent.
	Age time.Duration

	// Expires is when the response becomes stale, zero when unknown.
	Expires time.Time

	ETag         string
	LastModified time.Time
}

// Label returns "hit", "miss" or "unknown".
func (s Status) Label() string {
	switch {
	case !s.Known:
		return "unknown"
	case s.Hit:
		return "hit"
	default:
		return "miss"
	}
}

// TTL returns the remaining freshness at now, 0 when stale or unknown.
func (s Status) TTL(now time.Time) time.Duration {
	if s.Expires.IsZero() {
		return 0
	}
	ttl := s.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Inspect reads the caching headers of resp. now anchors relative values
// such as max-age.
func Inspect(resp *http.Response, now time.Time) Status {
	if resp == nil {
		return Status{}
	}

	var status Status
	h := resp.Header

	status.ETag = h.Get("ETag")
	if lastMod := h.Get("Last-Modified"); lastMod != "" {
		if t, err := http.ParseTime(lastMod); err == nil {
			status.LastModified = t
		}
	}

	if age, ok := parseAge(h.Get("Age")); ok {
		status.Age = age
	}
	status.Expires = parseExpires(h, now, status.Age)

	for _, name := range indicatorHeaders {
		value := strings.ToLower(h.Get(name))
		if value == "" {
			continue
		}
		if containsAny(value, hitIndicators) {
			status.Hit, status.Known, status.Source = true, true, name
			return status
		}
		if containsAny(value, missIndicators) {
			status.Known, status.Source = true, name
			return status
		}
	}

	// A non-zero Age means a shared cache held the object
	if status.Age > 0 {
		status.Hit, status.Known, status.Source = true, true, "Age"
	}

	return status
}

// parseExpires prefers Cache-Control s-maxage/max-age over Expires.
func parseExpires(h http.Header, now time.Time, age time.Duration) time.Time {
	if maxAge, ok := parseMaxAge(h.Get("Cache-Control")); ok {
		return now.Add(maxAge - age)
	}

	expiresStr := h.Get("Expires")
	if expiresStr == "" {
		return time.Time{}
	}
	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		// Invalid Expires means already expired
		return now
	}
	return expires
}

func parseMaxAge(cacheControl string) (time.Duration, bool) {
	var maxAge, sMaxAge time.Duration
	var hasMaxAge, hasSMaxAge bool

	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, _ := strings.Cut(strings.TrimSpace(directive), "=")
		seconds, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || seconds < 0 {
			continue
		}
		switch strings.ToLower(name) {
		case "s-maxage":
			sMaxAge, hasSMaxAge = time.Duration(seconds)*time.Second, true
		case "max-age":
			maxAge, hasMaxAge = time.Duration(seconds)*time.Second, true
		}
	}

	if hasSMaxAge {
		return sMaxAge, true
	}
	return maxAge, hasMaxAge
}

func parseAge(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func containsAny(value string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}
