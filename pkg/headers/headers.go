// Package headers builds the HTTP header sets sent with API and preload
// requests from a flat "key=value,key=value" configuration string.
package headers

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Set maps header names to values.
type Set map[string]string

// Default header values sent with every request unless overridden.
const (
	DefaultAcceptLanguage = "en-US,en;q=0.5"
	DefaultUserAgent      = "PreloadBot/1.0"
)

// Defaults returns a fresh copy of the default header set.
func Defaults() Set {
	return Set{
		"Accept-Language": DefaultAcceptLanguage,
		"User-Agent":      DefaultUserAgent,
	}
}

// Parse turns a raw "key=value,key=value" string into a header set.
// Segments that are not exactly one key=value pair are skipped and logged.
// Names are compared case-insensitively and a later duplicate replaces an
// earlier one, spelling included.
func Parse(raw string, logger zerolog.Logger) Set {
	set := Set{}
	if raw == "" {
		return set
	}
	index := map[string]string{}

	for _, segment := range strings.Split(raw, ",") {
		if strings.TrimSpace(segment) == "" {
			continue
		}

		parts := strings.Split(segment, "=")
		if len(parts) != 2 {
			logger.Error().Str("header", segment).Msg("Invalid header format")
			continue
		}

		key := strings.TrimSpace(parts[0])
		if key == "" {
			logger.Error().Str("header", segment).Msg("Invalid header format")
			continue
		}

		canonical := http.CanonicalHeaderKey(key)
		if previous, ok := index[canonical]; ok {
			delete(set, previous)
		}
		index[canonical] = key
		set[key] = strings.TrimSpace(parts[1])
	}

	return set
}

// Merge returns a new set holding defaults overlaid with custom. Names are
// compared case-insensitively and the custom spelling wins.
func Merge(defaults, custom Set) Set {
	merged := make(Set, len(defaults)+len(custom))
	index := make(map[string]string, len(defaults)+len(custom))

	put := func(name, value string) {
		canonical := http.CanonicalHeaderKey(name)
		if previous, ok := index[canonical]; ok {
			delete(merged, previous)
		}
		index[canonical] = name
		merged[name] = value
	}

	for name, value := range defaults {
		put(name, value)
	}
	for name, value := range custom {
		put(name, value)
	}

	return merged
}

// Build merges the default set with the custom headers parsed from raw.
func Build(raw string, logger zerolog.Logger) Set {
	return Merge(Defaults(), Parse(raw, logger))
}

// Get looks a header up case-insensitively.
func (s Set) Get(name string) (string, bool) {
	if value, ok := s[name]; ok {
		return value, true
	}
	canonical := http.CanonicalHeaderKey(name)
	for key, value := range s {
		if http.CanonicalHeaderKey(key) == canonical {
			return value, true
		}
	}
	return "", false
}

// Apply sets every header of the set on h.
func (s Set) Apply(h http.Header) {
	for name, value := range s {
		h.Set(name, value)
	}
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for name, value := range s {
		out[name] = value
	}
	return out
}
