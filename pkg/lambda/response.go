package lambda

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"expressless/pkg/negotiate"
)

// DefaultFormat is the Offer type used when no offered type is acceptable
const DefaultFormat = "default"

// FormatHandler renders one representation chosen by Response.Format
type FormatHandler func(req *Request, res *Response)

// Offer pairs a media type (or extension name, or DefaultFormat) with the
// handler rendering it.
type Offer struct {
	Type    string
	Handler FormatHandler
}

// On is shorthand for building an Offer
func On(mediaType string, handler FormatHandler) Offer {
	return Offer{Type: mediaType, Handler: handler}
}

// Response is the response under construction for one invocation. It is
// open until End, Send or JSON terminate it; after that every mutation is
// a usage error.
type Response struct {
	req        *Request
	completion *Completion
	log        logrus.FieldLogger

	statusCode        int
	headers           map[string]string
	multiValueHeaders map[string][]string
	body              any
	terminated        atomic.Bool
	locals            Locals
}

// NewResponse creates an open response for req whose outcome is delivered
// to completion. A nil logger falls back to the logrus standard logger.
func NewResponse(req *Request, completion *Completion, log logrus.FieldLogger) *Response {
	if completion == nil {
		completion = NewCompletion(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Response{
		req:        req,
		completion: completion,
		log:        log,
		statusCode: http.StatusOK,
		headers:    map[string]string{},
		body:       "",
	}
}

// Request returns the request this response answers
func (r *Response) Request() *Request {
	return r.req
}

// Completion returns the completion the response settles
func (r *Response) Completion() *Completion {
	return r.completion
}

// Locals returns the response-scoped extension bag
func (r *Response) Locals() *Locals {
	return &r.locals
}

// StatusCode returns the status set so far
func (r *Response) StatusCode() int {
	return r.statusCode
}

// Terminated reports whether the response has been finalized
func (r *Response) Terminated() bool {
	return r.terminated.Load()
}

// Get returns a header set on the response. It is legal in any state.
func (r *Response) Get(key string) string {
	return r.headers[strings.ToLower(key)]
}

// Set stores a single-value header
func (r *Response) Set(key, value string) *Response {
	r.mustBeOpen()
	r.headers[strings.ToLower(key)] = value
	return r
}

// Status sets the status code
func (r *Response) Status(code int) *Response {
	r.mustBeOpen()
	r.statusCode = code
	return r
}

// Type sets the Content-Type header
func (r *Response) Type(mediaType string) *Response {
	return r.Set("Content-Type", mediaType)
}

// Cookie appends a Set-Cookie value. Several cookies may be set on one
// response; each becomes its own multi-value header entry.
func (r *Response) Cookie(name, value string, opts *CookieOptions) *Response {
	r.mustBeOpen()
	if opts == nil {
		opts = &CookieOptions{}
	}
	cookie := serializeCookie(name, value, *opts, r.log)
	if r.multiValueHeaders == nil {
		r.multiValueHeaders = map[string][]string{}
	}
	r.multiValueHeaders[SetCookieHeader] = append(r.multiValueHeaders[SetCookieHeader], cookie)
	return r
}

// Send stores body and terminates the response. Strings and byte slices
// are sent verbatim; anything else is JSON encoded at termination.
func (r *Response) Send(body any) {
	if r.Terminated() {
		panic(ErrWriteAfterEnd)
	}
	r.body = body
	r.End()
}

// SendStatus sets the status code and sends its standard text
func (r *Response) SendStatus(code int) {
	r.Status(code).Send(http.StatusText(code))
}

// JSON sends body encoded as JSON with an application/json Content-Type
func (r *Response) JSON(body any) {
	if r.Terminated() {
		panic(ErrWriteAfterEnd)
	}
	data, err := marshalJSON(body)
	if err != nil {
		panic(fmt.Errorf("encode json response: %w", err))
	}
	r.Set("Content-Type", "application/json")
	r.Send(string(data))
}

// Format runs the handler of the offer that best matches the request's
// Accept header and sets Content-Type to that offer's type. If nothing is
// acceptable the DefaultFormat offer runs without touching Content-Type.
// Without one the completion fails with a 406 HTTPError listing the
// offered types. The response itself stays open.
func (r *Response) Format(offers ...Offer) *Response {
	r.mustBeOpen()

	var (
		types    []string
		fallback FormatHandler
	)
	handlers := make(map[string]FormatHandler, len(offers))
	for _, o := range offers {
		if o.Type == DefaultFormat {
			fallback = o.Handler
			continue
		}
		if _, seen := handlers[o.Type]; !seen {
			types = append(types, o.Type)
		}
		handlers[o.Type] = o.Handler
	}

	if chosen, ok := r.req.Accepts(types...); ok {
		r.Type(negotiate.Normalize(chosen))
		handlers[chosen](r.req, r)
		return r
	}
	if fallback != nil {
		fallback(r.req, r)
		return r
	}

	r.completion.Reject(notAcceptable(types))
	return r
}

// End terminates the response, freezing status, headers and body into an
// Artifact and settling the completion with it. Ending twice panics with
// ErrWriteAfterEnd.
func (r *Response) End() {
	if r.Terminated() {
		panic(ErrWriteAfterEnd)
	}

	body, err := encodeBody(r.body)
	if err != nil {
		panic(err)
	}

	if !r.terminated.CompareAndSwap(false, true) {
		panic(ErrWriteAfterEnd)
	}

	out := &Artifact{
		StatusCode: r.statusCode,
		Headers:    make(map[string]string, len(r.headers)),
		Body:       body,
	}
	for k, v := range r.headers {
		out.Headers[k] = v
	}
	if len(r.multiValueHeaders) > 0 {
		out.MultiValueHeaders = make(map[string][]string, len(r.multiValueHeaders))
		for k, v := range r.multiValueHeaders {
			out.MultiValueHeaders[k] = append([]string(nil), v...)
		}
	}

	r.completion.Resolve(out)
}

func (r *Response) mustBeOpen() {
	if r.Terminated() {
		panic(ErrHeadersSent)
	}
}

func encodeBody(body any) (string, error) {
	switch b := body.(type) {
	case nil:
		return "", nil
	case string:
		return b, nil
	case []byte:
		return string(b), nil
	case json.RawMessage:
		return string(b), nil
	default:
		data, err := marshalJSON(b)
		if err != nil {
			return "", fmt.Errorf("encode response body: %w", err)
		}
		return string(data), nil
	}
}

// marshalJSON encodes v without escaping <, > and &
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
