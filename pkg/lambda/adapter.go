package lambda

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Adapter runs a middleware chain for API Gateway events
type Adapter struct {
	chain      Middleware
	onFinished OnFinishedFunc
	log        logrus.FieldLogger
}

// Option configures an Adapter
type Option func(*Adapter)

// WithOnFinished registers a hook that runs after the response completed
// and before the outcome is delivered.
func WithOnFinished(fn OnFinishedFunc) Option {
	return func(a *Adapter) {
		a.onFinished = fn
	}
}

// WithLogger sets the logger used for routing errors and hook failures
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

// Adapt returns an Adapter running chain for every invocation
func Adapt(chain Middleware, opts ...Option) *Adapter {
	a := &Adapter{
		chain: chain,
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Invoke handles one event. When cb is nil the outcome is returned. When
// cb is set the outcome is passed to cb instead and Invoke returns nil, nil.
//
// Invoke blocks until the response completes or ctx is done. Usage errors
// raised by middleware (write after end, invalid argument) are returned as
// the invocation error.
func (a *Adapter) Invoke(ctx context.Context, event Event, cb CompletionFunc) (*Artifact, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := a.invoke(ctx, event)
	if cb != nil {
		cb(err, out)
		return nil, nil
	}
	return out, err
}

func (a *Adapter) invoke(ctx context.Context, event Event) (*Artifact, error) {
	req := NewRequest(ctx, event)
	completion := NewCompletion(nil)
	res := NewResponse(req, completion, a.log)
	req.res = res

	if err := a.dispatch(req, res); err != nil {
		a.log.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.Path,
			"error":  err.Error(),
		}).Error("Middleware usage error")
		return nil, err
	}

	if _, err := completion.Wait(ctx); err != nil && !completion.Settled() {
		return nil, err
	}
	out, err := completion.result()
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.Path,
			"error":  err.Error(),
		}).Error("Response failed")
	}
	return a.finish(ctx, err, out, req, res)
}

// dispatch runs the chain. Only usage errors are returned; any other panic
// is converted into a routing error.
func (a *Adapter) dispatch(req *Request, res *Response) (err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		perr := panicError(v)
		if isFatal(perr) {
			err = perr
			return
		}
		a.fallback(req, res, perr)
	}()

	a.chain(req, res, func(err error) {
		a.fallback(req, res, err)
	})
	return nil
}

// fallback terminates a response the chain did not: 500 when an error is
// pending, 404 otherwise. An already completed response is left alone.
func (a *Adapter) fallback(req *Request, res *Response, err error) {
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.Path,
			"error":  err.Error(),
		}).Error("Routing error")
	}
	if res.Terminated() || res.completion.Settled() {
		return
	}
	if err != nil {
		res.Status(http.StatusInternalServerError).Send("Server error")
		return
	}
	res.Status(http.StatusNotFound).Send("Not found")
}

// finish runs the onFinished hook. A failing hook is logged and the
// original outcome is kept, unless joined hooks replaced the artifact
// before one of them failed.
func (a *Adapter) finish(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
	if a.onFinished == nil {
		return out, err
	}

	replaced, hookErr := a.runHook(ctx, err, out, req, res)
	if hookErr != nil {
		a.log.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.Path,
			"error":  hookErr.Error(),
		}).Error("Error in onFinished hook")
		var partial *joinedHookError
		if errors.As(hookErr, &partial) {
			return partial.replaced, nil
		}
		return out, err
	}
	if replaced != nil {
		return replaced, nil
	}
	return out, err
}

func (a *Adapter) runHook(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (replaced *Artifact, hookErr error) {
	defer func() {
		if v := recover(); v != nil {
			hookErr = fmt.Errorf("onFinished panicked: %w", panicError(v))
		}
	}()
	return a.onFinished(ctx, err, out, req, res)
}

// Handle is the API Gateway REST (v1) Lambda entry point. A structured
// HTTP failure such as a failed content negotiation is rendered as its
// artifact; other failures are returned to the runtime.
func (a *Adapter) Handle(ctx context.Context, event Event) (Artifact, error) {
	out, err := a.Invoke(ctx, event, nil)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return *httpErr.Artifact(), nil
		}
		return Artifact{}, err
	}
	if out == nil {
		return Artifact{}, ErrNotFound
	}
	return *out, nil
}

// joinedHookError carries the artifact joined hooks produced before one
// of them failed
type joinedHookError struct {
	replaced *Artifact
	err      error
}

func (e *joinedHookError) Error() string {
	return e.err.Error()
}

func (e *joinedHookError) Unwrap() error {
	return e.err
}

// JoinOnFinished runs hooks in order as a single hook. Each hook sees the
// outcome left by the previous one. The first hook error stops the rest
// and is returned; an artifact the earlier hooks produced is still
// delivered.
func JoinOnFinished(hooks ...OnFinishedFunc) OnFinishedFunc {
	return func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
		var replaced *Artifact
		for _, hook := range hooks {
			if hook == nil {
				continue
			}
			next, hookErr := hook(ctx, err, out, req, res)
			if hookErr != nil {
				if replaced != nil {
					return nil, &joinedHookError{replaced: replaced, err: hookErr}
				}
				return nil, hookErr
			}
			if next != nil {
				out, err, replaced = next, nil, next
			}
		}
		return replaced, nil
	}
}
