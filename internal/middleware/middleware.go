package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"expressless/pkg/lambda"
)

// CORS middleware for handling Cross-Origin Resource Sharing
func CORS(allowOrigin string) lambda.Middleware {
	if allowOrigin == "" {
		allowOrigin = "*"
	}

	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		res.Set("Access-Control-Allow-Origin", allowOrigin)
		res.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		res.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		res.Set("Access-Control-Expose-Headers", "Content-Length")
		if allowOrigin != "*" {
			res.Set("Access-Control-Allow-Credentials", "true")
		}

		if req.Method == http.MethodOptions {
			res.Status(http.StatusNoContent).End()
			return
		}

		next(nil)
	}
}

// ErrorHandler is the error stage that renders failures as ErrorResponse
// JSON. HTTP errors keep their status; validation and bind failures map to
// 400; anything else is an opaque 500.
func ErrorHandler() lambda.ErrorMiddleware {
	return func(err error, req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		requestID := req.Locals().GetString(RequestIDKey)

		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     req.Method,
			"path":       req.Path,
			"error":      err.Error(),
			"user_id":    req.Locals().GetString("user_id"),
		}).Error("Request error")

		if res.Terminated() {
			return
		}

		response := ErrorResponse{
			RequestID: requestID,
			Timestamp: time.Now().Format(time.RFC3339),
		}
		status := http.StatusInternalServerError

		var (
			httpErr          *lambda.HTTPError
			bindErr          *BindError
			validationErrors validator.ValidationErrors
		)
		switch {
		case errors.As(err, &validationErrors):
			status = http.StatusBadRequest
			response.Error = "Validation failed"
			response.Message = "Request validation failed"
			response.ValidationErrors = formatValidationErrors(validationErrors)
		case errors.As(err, &bindErr):
			status = http.StatusBadRequest
			response.Error = "Invalid request format"
			response.Message = bindErr.Error()
		case errors.As(err, &httpErr):
			status = httpErr.Status
			response.Error = http.StatusText(httpErr.Status)
			response.Message = httpErr.Message
		default:
			response.Error = "Internal server error"
			response.Message = "An internal error occurred"
		}

		res.Status(status).JSON(response)
	}
}

// RequestLogger logs every request as it enters the chain
func RequestLogger() lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		logrus.WithFields(logrus.Fields{
			"timestamp":  req.ReceivedAt.Format(time.RFC3339),
			"method":     req.Method,
			"path":       req.Path,
			"client_ip":  req.IP,
			"user_agent": req.Get("User-Agent"),
		}).Info("HTTP Request")

		next(nil)
	}
}
