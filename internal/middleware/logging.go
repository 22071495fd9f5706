package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expressless/pkg/lambda"
)

// RequestIDKey is the key used to store request ID in request locals
const RequestIDKey = "request_id"

// CorrelationIDKey is the key used to store correlation ID in request locals
const CorrelationIDKey = "correlation_id"

// RequestID middleware adds a unique request ID to each request. The
// X-Request-ID header wins, then the Lambda request id, then the API
// Gateway request id; a fresh UUID is the last resort.
func RequestID() lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		requestID := req.Get("X-Request-ID")
		if requestID == "" {
			if lc, ok := lambdacontext.FromContext(req.Context()); ok {
				requestID = lc.AwsRequestID
			}
		}
		if requestID == "" {
			requestID = req.Event().RequestContext.RequestID
		}
		if requestID == "" {
			requestID = uuid.New().String()
		}

		req.Locals().Set(RequestIDKey, requestID)
		res.Set("X-Request-ID", requestID)
		next(nil)
	}
}

// CorrelationID middleware adds correlation ID for distributed tracing
func CorrelationID() lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		correlationID := req.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		req.Locals().Set(CorrelationIDKey, correlationID)
		res.Set("X-Correlation-ID", correlationID)
		next(nil)
	}
}

// StructuredLogger logs the outcome of every invocation with its request
// context. It runs as an onFinished hook and never changes the outcome.
func StructuredLogger(logger logrus.FieldLogger) lambda.OnFinishedFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(ctx context.Context, err error, out *lambda.Artifact, req *lambda.Request, res *lambda.Response) (*lambda.Artifact, error) {
		latency := time.Since(req.ReceivedAt)
		status := statusOf(err, out, res)

		fields := logrus.Fields{
			"timestamp":      req.ReceivedAt.Format(time.RFC3339Nano),
			"request_id":     req.Locals().GetString(RequestIDKey),
			"correlation_id": req.Locals().GetString(CorrelationIDKey),
			"method":         req.Method,
			"path":           req.Path,
			"status_code":    status,
			"latency_ms":     float64(latency.Nanoseconds()) / 1000000,
			"client_ip":      req.IP,
			"user_agent":     req.Get("User-Agent"),
			"content_length": req.Get("Content-Length"),
		}
		if out != nil {
			fields["response_size"] = len(out.Body)
		}
		if query := encodeQuery(req.Query); query != "" {
			fields["query"] = query
		}
		if userID := req.Locals().GetString("user_id"); userID != "" {
			fields["user_id"] = userID
		}
		if err != nil {
			fields["error"] = err.Error()
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("Server error")
		case status >= 400:
			entry.Warn("Client error")
		case status >= 300:
			entry.Info("Redirect")
		default:
			entry.Info("Request completed")
		}
		return nil, nil
	}
}

// AuditLogger logs write operations. It runs as an onFinished hook.
func AuditLogger(logger logrus.FieldLogger) lambda.OnFinishedFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(ctx context.Context, err error, out *lambda.Artifact, req *lambda.Request, res *lambda.Response) (*lambda.Artifact, error) {
		// Only audit write operations
		if req.Method == "GET" || req.Method == "HEAD" || req.Method == "OPTIONS" {
			return nil, nil
		}

		fields := logrus.Fields{
			"audit":          true,
			"timestamp":      req.ReceivedAt.Format(time.RFC3339Nano),
			"request_id":     req.Locals().GetString(RequestIDKey),
			"user_id":        req.Locals().GetString("user_id"),
			"username":       req.Locals().GetString("username"),
			"method":         req.Method,
			"path":           req.Path,
			"status_code":    statusOf(err, out, res),
			"client_ip":      req.IP,
			"operation_time": time.Since(req.ReceivedAt).Milliseconds(),
		}

		switch req.Method {
		case "POST":
			fields["operation"] = "CREATE"
		case "PUT", "PATCH":
			fields["operation"] = "UPDATE"
		case "DELETE":
			fields["operation"] = "DELETE"
		}

		if resourceID := extractResourceID(req); resourceID != "" {
			fields["resource_id"] = resourceID
		}

		logger.WithFields(fields).Info("Audit log")
		return nil, nil
	}
}

// PerformanceMonitor logs invocations slower than slowThreshold. It runs as
// an onFinished hook.
func PerformanceMonitor(logger logrus.FieldLogger, slowThreshold time.Duration) lambda.OnFinishedFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if slowThreshold == 0 {
		slowThreshold = 1 * time.Second // Default threshold
	}

	return func(ctx context.Context, err error, out *lambda.Artifact, req *lambda.Request, res *lambda.Response) (*lambda.Artifact, error) {
		latency := time.Since(req.ReceivedAt)
		if latency <= slowThreshold {
			return nil, nil
		}

		fields := logrus.Fields{
			"performance_alert": true,
			"request_id":        req.Locals().GetString(RequestIDKey),
			"method":            req.Method,
			"path":              req.Path,
			"latency_ms":        float64(latency.Nanoseconds()) / 1000000,
			"threshold_ms":      float64(slowThreshold.Nanoseconds()) / 1000000,
			"status_code":       statusOf(err, out, res),
		}
		if deadline, ok := ctx.Deadline(); ok {
			fields["remaining_ms"] = time.Until(deadline).Milliseconds()
		}

		logger.WithFields(fields).Warn("Slow request detected")
		return nil, nil
	}
}

// statusOf is the status the caller will see for an outcome
func statusOf(err error, out *lambda.Artifact, res *lambda.Response) int {
	if out != nil {
		return out.StatusCode
	}
	var httpErr *lambda.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	if err != nil {
		return http.StatusInternalServerError
	}
	return res.StatusCode()
}

func encodeQuery(query lambda.Values) string {
	return url.Values(query).Encode()
}

// extractResourceID returns the first path parameter or path segment that
// looks like a UUID
func extractResourceID(req *lambda.Request) string {
	if id := req.Param("id"); id != "" {
		return id
	}
	for _, part := range strings.Split(req.Path, "/") {
		if isUUID(part) {
			return part
		}
	}
	return ""
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
