package server

import (
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expressless/pkg/lambda"
)

// LocalStage is the stage name reported in emulated events
const LocalStage = "local"

// NewGateway returns a gin engine emulating API Gateway in front of the
// container's adapter. Every request not served by the engine itself is
// converted into a proxy event and answered with the resulting artifact.
func NewGateway(container *Container) *gin.Engine {
	if container.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if !container.Config.IsProduction() {
		router.Use(gin.LoggerWithWriter(container.Logger.Writer()))
	}

	if container.Config.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(container.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		event, err := EventFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Unreadable request body"})
			return
		}

		out, err := container.Adapter.Handle(c.Request.Context(), event)
		if err != nil {
			container.Logger.WithFields(logrus.Fields{
				"request_id": event.RequestContext.RequestID,
				"path":       event.Path,
				"error":      err.Error(),
			}).Error("Invocation failed")
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"message": "Internal server error"})
			return
		}

		if err := WriteArtifact(c.Writer, out); err != nil {
			container.Logger.WithError(err).Warn("Failed to write response")
		}
	})

	return router
}

// EventFromRequest converts an HTTP request into an API Gateway proxy
// event. Repeated headers and query parameters are kept in the multi-value
// maps; the single-value maps hold the last value. Bodies that are not
// valid UTF-8 are base64 encoded.
func EventFromRequest(r *http.Request) (lambda.Event, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return lambda.Event{}, err
		}
	}

	headers := make(map[string]string, len(r.Header)+1)
	multiHeaders := make(map[string][]string, len(r.Header)+1)
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		headers[name] = values[len(values)-1]
		multiHeaders[name] = append([]string(nil), values...)
	}
	if r.Host != "" {
		headers["Host"] = r.Host
		multiHeaders["Host"] = []string{r.Host}
	}
	if r.TLS != nil && headers["X-Forwarded-Proto"] == "" {
		headers["X-Forwarded-Proto"] = "https"
		multiHeaders["X-Forwarded-Proto"] = []string{"https"}
	}

	var query map[string]string
	var multiQuery map[string][]string
	if values := r.URL.Query(); len(values) > 0 {
		query = make(map[string]string, len(values))
		multiQuery = make(map[string][]string, len(values))
		for key, vs := range values {
			query[key] = vs[len(vs)-1]
			multiQuery[key] = vs
		}
	}

	sourceIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		sourceIP = host
	}

	event := lambda.Event{
		Resource:                        r.URL.Path,
		Path:                            r.URL.Path,
		HTTPMethod:                      r.Method,
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           query,
		MultiValueQueryStringParameters: multiQuery,
		RequestContext: events.APIGatewayProxyRequestContext{
			RequestID:        uuid.New().String(),
			Stage:            LocalStage,
			Path:             r.URL.Path,
			HTTPMethod:       r.Method,
			Protocol:         r.Proto,
			RequestTimeEpoch: time.Now().UnixMilli(),
			Identity: events.APIGatewayRequestIdentity{
				SourceIP:  sourceIP,
				UserAgent: r.UserAgent(),
			},
		},
	}

	if utf8.Valid(body) {
		event.Body = string(body)
	} else {
		event.Body = base64.StdEncoding.EncodeToString(body)
		event.IsBase64Encoded = true
	}
	return event, nil
}

// WriteArtifact writes an API Gateway proxy result to w
func WriteArtifact(w http.ResponseWriter, out lambda.Artifact) error {
	header := w.Header()
	for name, value := range out.Headers {
		if strings.EqualFold(name, "content-length") {
			continue
		}
		header.Set(name, value)
	}
	for name, values := range out.MultiValueHeaders {
		if strings.EqualFold(name, "content-length") {
			continue
		}
		header.Del(name)
		for _, value := range values {
			header.Add(name, value)
		}
	}

	body := []byte(out.Body)
	if out.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(out.Body)
		if err != nil {
			return err
		}
		body = decoded
	}

	status := out.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}
