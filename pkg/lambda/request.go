package lambda

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"expressless/pkg/negotiate"
)

// Request is the Express-compatible view over one API Gateway event. It is
// built once per invocation; middleware passes values along through Locals.
type Request struct {
	Method   string
	Path     string
	URL      string
	Params   map[string]string
	Headers  Header
	Query    Values
	Protocol string
	Secure   bool
	IPs      []string
	IP       string
	Hostname string
	Host     string
	XHR      bool

	// ReceivedAt is when the request was built from the event
	ReceivedAt time.Time

	ctx        context.Context
	event      *Event
	raw        string
	body       *bodyReader
	res        *Response
	locals     Locals
	negotiator *negotiate.Negotiator
}

// NewRequest normalizes event into a Request bound to ctx
func NewRequest(ctx context.Context, event Event) *Request {
	if ctx == nil {
		ctx = context.Background()
	}

	r := &Request{
		Method:     event.HTTPMethod,
		Path:       event.Path,
		URL:        event.Path,
		Params:     event.PathParameters,
		Headers:    NormalizeHeaders(event.Headers, event.MultiValueHeaders),
		Query:      NormalizeQuery(event.QueryStringParameters, event.MultiValueQueryStringParameters),
		ReceivedAt: time.Now(),
		ctx:        ctx,
		event:      &event,
		raw:        event.Body,
		body:       newBodyReader(event.Body),
	}
	if r.Params == nil {
		r.Params = map[string]string{}
	}

	// Content-Length has to be in place before anything else reads headers
	if r.Headers.Get("content-length") == "" && event.Body != "" {
		r.Headers.set("content-length", strconv.Itoa(len(event.Body)))
	}

	if r.Get("X-Forwarded-Proto") == "https" {
		r.Protocol = "https"
	} else {
		r.Protocol = "http"
	}
	r.Secure = r.Protocol == "https"

	if forwarded := r.Get("X-Forwarded-For"); forwarded != "" {
		for _, ip := range strings.Split(forwarded, ",") {
			r.IPs = append(r.IPs, strings.TrimSpace(ip))
		}
		r.IP = r.IPs[0]
	} else {
		r.IP = event.RequestContext.Identity.SourceIP
	}

	r.Hostname = r.Get("Host")
	r.Host = r.Get("X-Forwarded-Host")
	if r.Host == "" {
		r.Host = r.Hostname
	}
	r.XHR = strings.EqualFold(r.Get("X-Requested-With"), "xmlhttprequest")

	r.negotiator = negotiate.New(r.Headers)
	return r
}

// Context returns the invocation context
func (r *Request) Context() context.Context {
	return r.ctx
}

// Event returns the raw event the request was built from
func (r *Request) Event() *Event {
	return r.event
}

// Response returns the response paired with this request by the adapter
func (r *Request) Response() *Response {
	return r.res
}

// Locals returns the request-scoped extension bag
func (r *Request) Locals() *Locals {
	return &r.locals
}

// IsBase64Encoded reports whether API Gateway base64-encoded the body
func (r *Request) IsBase64Encoded() bool {
	return r.event.IsBase64Encoded
}

// Get returns the named request header. Referer and Referrer are
// interchangeable. An empty name is a usage error and panics.
func (r *Request) Get(name string) string {
	return r.Header(name)
}

// Header is an alias of Get
func (r *Request) Header(name string) string {
	if name == "" {
		panic(fmt.Errorf("%w: name argument is required to req.get", ErrInvalidArgument))
	}

	switch lc := strings.ToLower(name); lc {
	case "referer", "referrer":
		if v, ok := r.Headers.Lookup("referrer"); ok {
			return v
		}
		return r.Headers.Get("referer")
	default:
		return r.Headers.Get(lc)
	}
}

// QueryValue returns the first value of the named query parameter
func (r *Request) QueryValue(name string) string {
	return r.Query.Get(name)
}

// QueryValues returns every value of the named query parameter
func (r *Request) QueryValues(name string) []string {
	return r.Query.Values(name)
}

// Param returns the named path parameter
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// Accepts returns the best of types according to the Accept header. Types
// may be MIME types or extension names, given as separate arguments or
// comma-delimited. Without an Accept header the first type wins.
func (r *Request) Accepts(types ...string) (string, bool) {
	types = flatten(types)
	if len(types) == 0 {
		return "", false
	}
	if accept, _ := r.Headers.Lookup("accept"); accept == "" {
		return types[0], true
	}

	mimes := make([]string, len(types))
	valid := make([]string, 0, len(types))
	for i, t := range types {
		mimes[i] = negotiate.Normalize(t)
		if strings.Contains(mimes[i], "/") {
			valid = append(valid, mimes[i])
		}
	}

	accepted := r.negotiator.MediaTypes(valid...)
	if len(accepted) == 0 {
		return "", false
	}
	for i, m := range mimes {
		if m == accepted[0] {
			return types[i], true
		}
	}
	return "", false
}

// AcceptsEncodings returns the best of encodings according to Accept-Encoding
func (r *Request) AcceptsEncodings(encodings ...string) (string, bool) {
	return first(r.negotiator.Encodings(flatten(encodings)...), encodings)
}

// AcceptsCharsets returns the best of charsets according to Accept-Charset
func (r *Request) AcceptsCharsets(charsets ...string) (string, bool) {
	return first(r.negotiator.Charsets(flatten(charsets)...), charsets)
}

// AcceptsLanguages returns the best of langs according to Accept-Language
func (r *Request) AcceptsLanguages(langs ...string) (string, bool) {
	return first(r.negotiator.Languages(flatten(langs)...), langs)
}

// AcceptedTypes returns the client's media types in preference order
func (r *Request) AcceptedTypes() []string {
	return r.negotiator.MediaTypes()
}

// AcceptedEncodings returns the client's encodings in preference order
func (r *Request) AcceptedEncodings() []string {
	return r.negotiator.Encodings()
}

// AcceptedCharsets returns the client's charsets in preference order
func (r *Request) AcceptedCharsets() []string {
	return r.negotiator.Charsets()
}

// AcceptedLanguages returns the client's languages in preference order
func (r *Request) AcceptedLanguages() []string {
	return r.negotiator.Languages()
}

// Is reports whether the request carries a body whose Content-Type matches
// one of types, returning the matching entry.
func (r *Request) Is(types ...string) (string, bool) {
	if !r.hasBody() {
		return "", false
	}
	return negotiate.Is(r.Get("Content-Type"), flatten(types)...)
}

func (r *Request) hasBody() bool {
	if r.Headers.Has("transfer-encoding") {
		return true
	}
	_, err := strconv.Atoi(strings.TrimSpace(r.Headers.Get("content-length")))
	return err == nil
}

// Read reads from the body stream. The stream yields the body once and
// then io.EOF; it cannot be rewound.
func (r *Request) Read(p []byte) (int, error) {
	return r.body.Read(p)
}

// Body returns the single-use body stream
func (r *Request) Body() io.Reader {
	return r.body
}

// RawBody returns the body exactly as it arrived in the event
func (r *Request) RawBody() string {
	return r.raw
}

func flatten(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func first(accepted []string, requested []string) (string, bool) {
	if len(flatten(requested)) == 0 || len(accepted) == 0 {
		return "", false
	}
	return accepted[0], true
}
