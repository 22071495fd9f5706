package negotiate

import (
	"mime"
	"strings"
)

// Is reports which of types matches contentType. Types may be full MIME
// types, bare extension names ("json"), wildcards ("text/*", "*/*") or
// structured syntax suffixes ("+json"). The matched entry is returned as
// given, except for wildcard and suffix entries which yield the actual
// content type. With no types the normalized content type itself is returned.
func Is(contentType string, types ...string) (string, bool) {
	actual := normalizeContentType(contentType)
	if actual == "" {
		return "", false
	}
	if len(types) == 0 {
		return actual, true
	}

	for _, t := range types {
		if mimeMatch(normalizeType(t), actual) {
			if strings.HasPrefix(t, "+") || strings.Contains(t, "*") {
				return actual, true
			}
			return t, true
		}
	}
	return "", false
}

func normalizeContentType(value string) string {
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	if !strings.Contains(mediaType, "/") {
		return ""
	}
	return mediaType
}

func normalizeType(t string) string {
	switch {
	case t == "urlencoded":
		return "application/x-www-form-urlencoded"
	case t == "multipart":
		return "multipart/*"
	case strings.HasPrefix(t, "+"):
		return "*/*" + t
	case strings.Contains(t, "/"):
		return strings.ToLower(t)
	default:
		return Lookup(t)
	}
}

func mimeMatch(expected, actual string) bool {
	if expected == "" {
		return false
	}
	eKind, eSub, ok := strings.Cut(expected, "/")
	if !ok {
		return false
	}
	aKind, aSub, ok := strings.Cut(actual, "/")
	if !ok {
		return false
	}
	if eKind != "*" && eKind != aKind {
		return false
	}
	if strings.HasPrefix(eSub, "*+") {
		suffix := eSub[1:]
		return len(suffix) <= len(aSub) && strings.HasSuffix(aSub, suffix)
	}
	return eSub == "*" || eSub == aSub
}
