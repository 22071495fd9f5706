package middleware

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"expressless/pkg/lambda"
)

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	RequestID        string            `json:"request_id,omitempty"`
	Timestamp        string            `json:"timestamp"`
}

// BindError reports a body that could not be decoded
type BindError struct {
	Err error
}

func (e *BindError) Error() string {
	return e.Err.Error()
}

func (e *BindError) Unwrap() error {
	return e.Err
}

var validate = validator.New()

// BindJSON decodes the JSON request body into obj and validates it against
// its struct tags. Decoding failures are *BindError; validation failures
// are validator.ValidationErrors.
func BindJSON(req *lambda.Request, obj any) error {
	if _, ok := req.Is("json", "+json"); !ok {
		return &BindError{Err: fmt.Errorf("expected a JSON body, got Content-Type %q", req.Get("Content-Type"))}
	}

	decoder := json.NewDecoder(requestBody(req))
	if err := decoder.Decode(obj); err != nil {
		return &BindError{Err: fmt.Errorf("invalid JSON body: %w", err)}
	}

	if err := validate.Struct(obj); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return err
	}
	return nil
}

func writeError(req *lambda.Request, res *lambda.Response, status int, title, message string) {
	res.Status(status).JSON(ErrorResponse{
		Error:     title,
		Message:   message,
		RequestID: req.Locals().GetString(RequestIDKey),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// RequestValidation middleware for validating common request parameters
func RequestValidation() lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		if err := validateQueryParams(req); err != nil {
			writeError(req, res, http.StatusBadRequest, "Invalid query parameters", err.Error())
			return
		}

		if err := validatePathParams(req); err != nil {
			writeError(req, res, http.StatusBadRequest, "Invalid path parameters", err.Error())
			return
		}

		next(nil)
	}
}

// PathValidation checks path parameters once routing has captured them.
// Attach it to routes so router params are in req.Params when it runs.
func PathValidation() lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		if err := validatePathParams(req); err != nil {
			writeError(req, res, http.StatusBadRequest, "Invalid path parameters", err.Error())
			return
		}
		next(nil)
	}
}

const (
	// limiterIdleTimeout is how long a client limiter survives without requests
	limiterIdleTimeout = 10 * time.Minute
	// maxTrackedClients bounds the per-client limiter table
	maxTrackedClients = 10000
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters hands out one token bucket per client. Limiters idle for
// longer than idle are swept. Once max clients are tracked, new clients
// share a single overflow limiter until the next sweep frees room.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	max       int
	clients   map[string]*clientLimiter
	overflow  *rate.Limiter
	lastSweep time.Time
}

func newClientLimiters(limit rate.Limit, burst int, idle time.Duration, max int) *clientLimiters {
	return &clientLimiters{
		limit:    limit,
		burst:    burst,
		idle:     idle,
		max:      max,
		clients:  make(map[string]*clientLimiter),
		overflow: rate.NewLimiter(limit, burst),
	}
}

func (c *clientLimiters) get(key string, now time.Time) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) >= c.idle {
		for k, cl := range c.clients {
			if now.Sub(cl.lastSeen) >= c.idle {
				delete(c.clients, k)
			}
		}
		c.lastSweep = now
	}

	if cl, ok := c.clients[key]; ok {
		cl.lastSeen = now
		return cl.limiter
	}
	if len(c.clients) >= c.max {
		return c.overflow
	}

	cl := &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst), lastSeen: now}
	c.clients[key] = cl
	return cl.limiter
}

func (c *clientLimiters) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// clientKey identifies the caller by the source address API Gateway
// recorded. X-Forwarded-For is client supplied and is not used.
func clientKey(req *lambda.Request) string {
	return req.Event().RequestContext.Identity.SourceIP
}

// RateLimiter limits requests per source IP. A zero rate disables it.
func RateLimiter(requestsPerSecond float64, burstSize int) lambda.Middleware {
	limiters := newClientLimiters(rate.Limit(requestsPerSecond), burstSize, limiterIdleTimeout, maxTrackedClients)

	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		if requestsPerSecond <= 0 {
			next(nil)
			return
		}

		sourceIP := clientKey(req)
		if !limiters.get(sourceIP, time.Now()).Allow() {
			logrus.WithFields(logrus.Fields{
				"source_ip":  sourceIP,
				"client_ip":  req.IP,
				"path":       req.Path,
				"user_agent": req.Get("User-Agent"),
				"user_id":    req.Locals().GetString("user_id"),
			}).Warn("Rate limit exceeded")

			res.Set("Retry-After", "1")
			writeError(req, res, http.StatusTooManyRequests, "Rate limit exceeded",
				fmt.Sprintf("Too many requests. Limit: %.1f requests per second", requestsPerSecond))
			return
		}
		next(nil)
	}
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		res.Set("X-Content-Type-Options", "nosniff")
		res.Set("X-Frame-Options", "DENY")
		res.Set("X-XSS-Protection", "1; mode=block")
		res.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		res.Set("Content-Security-Policy", "default-src 'self'")
		if req.Secure {
			res.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next(nil)
	}
}

// ContentTypeValidation validates request content types. Types may be MIME
// types, extension names or wildcards such as "text/*".
func ContentTypeValidation(allowedTypes ...string) lambda.Middleware {
	if len(allowedTypes) == 0 {
		allowedTypes = []string{"application/json"}
	}

	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		// Skip validation for GET, HEAD, OPTIONS requests
		if req.Method == "GET" || req.Method == "HEAD" || req.Method == "OPTIONS" {
			next(nil)
			return
		}

		contentType := req.Get("Content-Type")
		if contentType == "" {
			if req.RawBody() == "" {
				next(nil)
				return
			}
			writeError(req, res, http.StatusBadRequest, "Missing Content-Type header", "Content-Type header is required")
			return
		}

		if _, ok := req.Is(allowedTypes...); !ok {
			mainType := strings.TrimSpace(strings.Split(contentType, ";")[0])
			writeError(req, res, http.StatusUnsupportedMediaType, "Unsupported Content-Type",
				fmt.Sprintf("Content-Type '%s' is not supported. Allowed types: %v", mainType, allowedTypes))
			return
		}

		next(nil)
	}
}

// RequestSizeLimit limits the size of request bodies
func RequestSizeLimit(maxSize int64) lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		if maxSize <= 0 {
			next(nil)
			return
		}

		size := bodySize(req)
		// A derived Content-Length counts encoded characters for base64 bodies
		if !req.IsBase64Encoded() {
			if declared, err := strconv.ParseInt(req.Get("Content-Length"), 10, 64); err == nil && declared > size {
				size = declared
			}
		}

		if size > maxSize {
			writeError(req, res, http.StatusRequestEntityTooLarge, "Request too large",
				fmt.Sprintf("Request body size (%d bytes) exceeds maximum allowed size (%d bytes)", size, maxSize))
			return
		}

		next(nil)
	}
}

// Helper functions

// requestBody returns the request body stream. API Gateway delivers binary
// bodies base64 encoded; middleware always reads the decoded bytes.
func requestBody(req *lambda.Request) io.Reader {
	if req.IsBase64Encoded() {
		return base64.NewDecoder(base64.StdEncoding, req.Body())
	}
	return req.Body()
}

// bodySize returns the decoded length of the request body
func bodySize(req *lambda.Request) int64 {
	raw := req.RawBody()
	if !req.IsBase64Encoded() {
		return int64(len(raw))
	}
	trimmed := strings.TrimRight(raw, "=")
	return int64(base64.StdEncoding.DecodedLen(len(raw)) - (len(raw) - len(trimmed)))
}

func validateQueryParams(req *lambda.Request) error {
	// Validate common pagination parameters
	if limit := req.QueryValue("limit"); limit != "" {
		if val, err := strconv.Atoi(limit); err != nil || val < 0 || val > 1000 {
			return fmt.Errorf("invalid limit parameter: must be a positive integer <= 1000")
		}
	}

	if offset := req.QueryValue("offset"); offset != "" {
		if val, err := strconv.Atoi(offset); err != nil || val < 0 {
			return fmt.Errorf("invalid offset parameter: must be a non-negative integer")
		}
	}

	// Validate date parameters
	for _, param := range []string{"start_date", "end_date", "since", "until"} {
		if value := req.QueryValue(param); value != "" {
			if _, err := time.Parse(time.RFC3339, value); err != nil {
				return fmt.Errorf("invalid %s parameter: must be in RFC3339 format", param)
			}
		}
	}

	return nil
}

func validatePathParams(req *lambda.Request) error {
	// Path parameters named id or ending in _id must be UUIDs
	for name, value := range req.Params {
		if name != "id" && !strings.HasSuffix(name, "_id") {
			continue
		}
		if !isUUID(value) {
			return fmt.Errorf("invalid %s parameter: must be a valid UUID", name)
		}
	}

	return nil
}

func formatValidationErrors(validationErrors validator.ValidationErrors) []ValidationError {
	var errors []ValidationError

	for _, err := range validationErrors {
		var message string

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		default:
			message = fmt.Sprintf("%s is invalid", err.Field())
		}

		errors = append(errors, ValidationError{
			Field:   err.Field(),
			Tag:     err.Tag(),
			Value:   fmt.Sprintf("%v", err.Value()),
			Message: message,
		})
	}

	return errors
}
