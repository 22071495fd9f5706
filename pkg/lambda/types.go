package lambda

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
)

// Event is the API Gateway proxy event a single invocation starts from
type Event = events.APIGatewayProxyRequest

// Artifact is the frozen result handed back to API Gateway
type Artifact = events.APIGatewayProxyResponse

// NextFunc passes control to the next stage of a middleware chain. A nil
// error proceeds normally; a non-nil error skips to the next error stage.
type NextFunc func(err error)

// Middleware is an Express-compatible request handling stage
type Middleware func(req *Request, res *Response, next NextFunc)

// ErrorMiddleware is an Express-compatible error handling stage
type ErrorMiddleware func(err error, req *Request, res *Response, next NextFunc)

// CompletionFunc receives the outcome of a response exactly once. On
// success err is nil; on failure out is nil.
type CompletionFunc func(err error, out *Artifact)

// OnFinishedFunc post-processes the outcome of an invocation before it is
// delivered. Returning a non-nil artifact replaces the outcome; returning
// nil, nil keeps it.
type OnFinishedFunc func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error)
