package lambda

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SetCookieHeader is the multi-value header cookies are collected under
const SetCookieHeader = "Set-Cookie"

// CookieOptions are the attributes serialized after name=value
type CookieOptions struct {
	Domain   string
	Expires  time.Time
	MaxAge   *int
	Path     string
	SameSite string
	HttpOnly bool
	Secure   bool
	// Extra holds attributes this package does not serialize. They are
	// logged and dropped.
	Extra map[string]any
}

// serializeCookie builds one Set-Cookie value. Attributes are written in a
// fixed order and Path defaults to "/".
func serializeCookie(name, value string, opts CookieOptions, log logrus.FieldLogger) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(value)

	if opts.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(opts.Domain)
	}
	if !opts.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(opts.Expires.UTC().Format(http.TimeFormat))
	}
	if opts.MaxAge != nil {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(*opts.MaxAge))
	}

	path := opts.Path
	if path == "" {
		path = "/"
	}
	b.WriteString("; Path=")
	b.WriteString(path)

	if opts.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(opts.SameSite)
	}
	if opts.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if opts.Secure {
		b.WriteString("; Secure")
	}

	if len(opts.Extra) > 0 {
		keys := make([]string, 0, len(opts.Extra))
		for k := range opts.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			log.WithFields(logrus.Fields{
				"cookie": name,
				"option": k,
			}).Warn("Cookie parameter not supported")
		}
	}

	return b.String()
}
