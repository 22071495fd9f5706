package lambda

import (
	"sort"
	"strings"
)

// Values is a normalized multi-value mapping. Single-value consumers see
// the first value of each key; the full list stays available.
type Values map[string][]string

// Get returns the first value for key, or "" if there is none
func (v Values) Get(key string) string {
	value, _ := v.Lookup(key)
	return value
}

// Lookup returns the first value for key and whether the key exists
func (v Values) Lookup(key string) (string, bool) {
	values := v[key]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Values returns every value stored for key
func (v Values) Values(key string) []string {
	return v[key]
}

// Has reports whether key is present
func (v Values) Has(key string) bool {
	return len(v[key]) > 0
}

// Len returns the number of keys
func (v Values) Len() int {
	return len(v)
}

// Keys returns the keys in sorted order
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Header is a normalized header mapping with lower-cased keys. Lookups are
// case-insensitive.
type Header Values

// Get returns the first value of the named header
func (h Header) Get(name string) string {
	return Values(h).Get(strings.ToLower(name))
}

// Lookup returns the first value of the named header and whether it is set
func (h Header) Lookup(name string) (string, bool) {
	return Values(h).Lookup(strings.ToLower(name))
}

// Values returns every value of the named header
func (h Header) Values(name string) []string {
	return h[strings.ToLower(name)]
}

// Has reports whether the named header is set
func (h Header) Has(name string) bool {
	return Values(h).Has(strings.ToLower(name))
}

// Keys returns the lower-cased header names in sorted order
func (h Header) Keys() []string {
	return Values(h).Keys()
}

func (h Header) set(name, value string) {
	h[strings.ToLower(name)] = []string{value}
}

// NormalizeHeaders collapses the single and multi-value header maps of an
// event into one Header. The multi-value map wins when it is present;
// otherwise every single value becomes a one-element list.
func NormalizeHeaders(single map[string]string, multi map[string][]string) Header {
	return Header(normalize(single, multi, strings.ToLower))
}

// NormalizeQuery does for query parameters what NormalizeHeaders does for
// headers. Parameter names keep their case.
func NormalizeQuery(single map[string]string, multi map[string][]string) Values {
	return normalize(single, multi, func(s string) string { return s })
}

func normalize(single map[string]string, multi map[string][]string, fold func(string) string) Values {
	if len(multi) == 0 {
		multi = make(map[string][]string, len(single))
		for k, v := range single {
			multi[k] = []string{v}
		}
	}

	// Keys folding to the same name merge in sorted order so the first
	// value does not depend on map iteration.
	keys := make([]string, 0, len(multi))
	for k := range multi {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Values, len(multi))
	for _, k := range keys {
		values := multi[k]
		if len(values) == 0 {
			continue
		}
		name := fold(k)
		out[name] = append(out[name], values...)
	}
	return out
}
