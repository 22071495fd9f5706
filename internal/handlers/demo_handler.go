package handlers

import (
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/google/uuid"

	"expressless/internal/middleware"
	"expressless/pkg/lambda"
)

// SessionCookie is the cookie carrying the demo session id
const SessionCookie = "session_id"

// DemoHandler serves the demo endpoints
type DemoHandler struct {
	service string
	version string
	secure  bool
}

// NewDemoHandler creates a demo handler. Cookies are marked Secure when
// secure is set.
func NewDemoHandler(service, version string, secure bool) *DemoHandler {
	return &DemoHandler{service: service, version: version, secure: secure}
}

// EchoRequest is the body accepted by Echo
type EchoRequest struct {
	Message string   `json:"message" validate:"required,max=1024"`
	Tags    []string `json:"tags" validate:"max=10,dive,min=1,max=32"`
}

// EchoResponse is returned by Echo
type EchoResponse struct {
	Message   string            `json:"message"`
	Tags      []string          `json:"tags,omitempty"`
	Query     map[string]string `json:"query,omitempty"`
	RequestID string            `json:"request_id"`
	Received  time.Time         `json:"received_at"`
}

// Health reports service liveness
func (h *DemoHandler) Health(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	res.JSON(map[string]string{
		"status":  "healthy",
		"service": h.service,
		"version": h.version,
	})
}

// Greeting greets ?name= in the representation the client accepts
func (h *DemoHandler) Greeting(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	name := req.QueryValue("name")
	if name == "" {
		name = "world"
	}
	message := fmt.Sprintf("Hello, %s!", name)

	res.Format(
		lambda.On("text", func(req *lambda.Request, res *lambda.Response) {
			res.Send(message)
		}),
		lambda.On("html", func(req *lambda.Request, res *lambda.Response) {
			res.Send("<p>" + html.EscapeString(message) + "</p>")
		}),
		lambda.On("json", func(req *lambda.Request, res *lambda.Response) {
			res.JSON(map[string]string{"message": message})
		}),
	)
}

// Echo returns the validated JSON body together with the query string
func (h *DemoHandler) Echo(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	var body EchoRequest
	if err := middleware.BindJSON(req, &body); err != nil {
		next(err)
		return
	}

	var query map[string]string
	if req.Query.Len() > 0 {
		query = make(map[string]string, req.Query.Len())
		for _, key := range req.Query.Keys() {
			query[key] = req.Query.Get(key)
		}
	}

	res.Status(http.StatusCreated).JSON(EchoResponse{
		Message:   body.Message,
		Tags:      body.Tags,
		Query:     query,
		RequestID: req.Locals().GetString(middleware.RequestIDKey),
		Received:  req.ReceivedAt,
	})
}

// Session starts a session, reusing the id from an existing session cookie
func (h *DemoHandler) Session(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
	sessionID, ok := readCookie(req, SessionCookie)
	if !ok {
		sessionID = uuid.New().String()
	}

	maxAge := int((24 * time.Hour).Seconds())
	res.Cookie(SessionCookie, sessionID, &lambda.CookieOptions{
		MaxAge:   &maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: "Lax",
	})
	res.Cookie("last_seen", req.ReceivedAt.UTC().Format(time.RFC3339), &lambda.CookieOptions{
		Expires: req.ReceivedAt.Add(24 * time.Hour),
	})
	res.JSON(map[string]any{
		"session_id": sessionID,
		"resumed":    ok,
	})
}

// readCookie returns the named cookie from the Cookie header
func readCookie(req *lambda.Request, name string) (string, bool) {
	header := req.Get("Cookie")
	if header == "" {
		return "", false
	}
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return "", false
	}
	for _, cookie := range cookies {
		if cookie.Name == name && cookie.Value != "" {
			return cookie.Value, true
		}
	}
	return "", false
}
