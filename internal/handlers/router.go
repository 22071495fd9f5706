package handlers

import (
	"strings"

	"expressless/pkg/lambda"
)

type route struct {
	method   string
	segments []string
	handler  lambda.Middleware
}

// Router dispatches on method and path. Patterns use gin-style ":name"
// segments; captured values are merged into req.Params. Requests that match
// no route fall through to the next stage.
type Router struct {
	prefix string
	stages []lambda.Stage
	routes *[]route
}

// NewRouter creates an empty router
func NewRouter() *Router {
	return &Router{routes: &[]route{}}
}

// Group returns a router that registers routes under prefix. Stages run
// before every handler registered through the group.
func (r *Router) Group(prefix string, stages ...lambda.Stage) *Router {
	return &Router{
		prefix: r.prefix + prefix,
		stages: append(append([]lambda.Stage{}, r.stages...), stages...),
		routes: r.routes,
	}
}

// Handle registers stages for method and pattern. An empty method matches
// any method.
func (r *Router) Handle(method, pattern string, stages ...lambda.Stage) {
	*r.routes = append(*r.routes, route{
		method:   method,
		segments: split(r.prefix + pattern),
		handler:  lambda.Chain(append(append([]lambda.Stage{}, r.stages...), stages...)...),
	})
}

// GET registers a GET route
func (r *Router) GET(pattern string, stages ...lambda.Stage) {
	r.Handle("GET", pattern, stages...)
}

// POST registers a POST route
func (r *Router) POST(pattern string, stages ...lambda.Stage) {
	r.Handle("POST", pattern, stages...)
}

// Middleware returns the stage that runs the first matching route
func (r *Router) Middleware() lambda.Middleware {
	return func(req *lambda.Request, res *lambda.Response, next lambda.NextFunc) {
		path := split(req.Path)
		for _, rt := range *r.routes {
			if rt.method != "" && rt.method != req.Method {
				continue
			}
			params, ok := match(rt.segments, path)
			if !ok {
				continue
			}
			if len(params) > 0 {
				merged := make(map[string]string, len(req.Params)+len(params))
				for name, value := range req.Params {
					merged[name] = value
				}
				for name, value := range params {
					merged[name] = value
				}
				req.Params = merged
			}
			rt.handler(req, res, next)
			return
		}
		next(nil)
	}
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func match(pattern, path []string) (map[string]string, bool) {
	if len(pattern) != len(path) {
		return nil, false
	}
	var params map[string]string
	for i, segment := range pattern {
		if strings.HasPrefix(segment, ":") {
			if params == nil {
				params = map[string]string{}
			}
			params[segment[1:]] = path[i]
			continue
		}
		if segment != path[i] {
			return nil, false
		}
	}
	return params, true
}
