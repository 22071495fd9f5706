package lambda

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Stage is one entry of a middleware chain: either a regular middleware or
// an error handling middleware.
type Stage struct {
	handle  Middleware
	recover ErrorMiddleware
}

// Use wraps a regular middleware as a chain stage
func Use(mw Middleware) Stage {
	return Stage{handle: mw}
}

// Catch wraps an error handling middleware as a chain stage
func Catch(mw ErrorMiddleware) Stage {
	return Stage{recover: mw}
}

// Chain composes stages into a single Middleware. Stages run in order,
// each one only after the previous stage called next. While an error is
// pending regular stages are skipped and the next error stage receives it;
// without a pending error, error stages are skipped. When the chain runs
// out of stages the outer next is called with whatever error is pending.
//
// A panic inside a stage is recovered and handed on as next(err), except
// for usage errors (write after end, invalid argument), which keep
// propagating.
func Chain(stages ...Stage) Middleware {
	return func(req *Request, res *Response, done NextFunc) {
		var run func(i int, err error)
		run = func(i int, err error) {
			for ; i < len(stages); i++ {
				s := stages[i]
				if (err != nil && s.recover != nil) || (err == nil && s.handle != nil) {
					invokeStage(s, i, err, req, res, run)
					return
				}
			}
			done(err)
		}
		run(0, nil)
	}
}

func invokeStage(s Stage, i int, err error, req *Request, res *Response, run func(int, error)) {
	var called atomic.Bool
	next := func(nextErr error) {
		if !called.CompareAndSwap(false, true) {
			res.log.WithFields(logrus.Fields{
				"stage": i,
				"path":  req.Path,
			}).Warn("next called more than once")
			return
		}
		run(i+1, nextErr)
	}

	defer func() {
		v := recover()
		if v == nil {
			return
		}
		perr := panicError(v)
		if isFatal(perr) {
			panic(perr)
		}
		if called.CompareAndSwap(false, true) {
			run(i+1, perr)
			return
		}
		res.log.WithFields(logrus.Fields{
			"stage": i,
			"path":  req.Path,
			"error": perr.Error(),
		}).Error("Panic after next was called")
	}()

	if err != nil {
		s.recover(err, req, res, next)
		return
	}
	s.handle(req, res, next)
}
