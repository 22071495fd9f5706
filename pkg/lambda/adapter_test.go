package lambda

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func proxyEvent() Event {
	return Event{
		Body:                            "",
		Headers:                         map[string]string{},
		MultiValueHeaders:               map[string][]string{},
		HTTPMethod:                      "GET",
		Path:                            "/path",
		PathParameters:                  map[string]string{},
		QueryStringParameters:           map[string]string{},
		MultiValueQueryStringParameters: map[string][]string{},
		StageVariables:                  map[string]string{},
	}
}

func testAdapter(chain Middleware, opts ...Option) (*Adapter, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return Adapt(chain, append([]Option{WithLogger(logger)}, opts...)...), hook
}

func TestAdapterJSON(t *testing.T) {
	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		res.JSON(map[string]int{"a": 1})
	})))

	out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", out.StatusCode)
	}
	if len(out.Headers) != 1 || out.Headers["content-type"] != "application/json" {
		t.Errorf("Expected only content-type application/json, got %v", out.Headers)
	}
	if out.Body != `{"a":1}` {
		t.Errorf("Expected body {\"a\":1}, got %s", out.Body)
	}
}

func TestAdapterNotFound(t *testing.T) {
	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		next(nil)
	})))

	out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.StatusCode != http.StatusNotFound || out.Body != "Not found" {
		t.Errorf("Expected 404 Not found, got %d %s", out.StatusCode, out.Body)
	}
}

func TestAdapterServerError(t *testing.T) {
	tests := []struct {
		name  string
		chain Middleware
	}{
		{"chain panic", Chain(Use(func(req *Request, res *Response, next NextFunc) {
			panic(errors.New("test"))
		}))},
		{"bare middleware panic", func(req *Request, res *Response, next NextFunc) {
			panic(errors.New("test"))
		}},
		{"next with error", Chain(Use(func(req *Request, res *Response, next NextFunc) {
			next(errors.New("test"))
		}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, hook := testAdapter(tt.chain)

			out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if out.StatusCode != http.StatusInternalServerError || out.Body != "Server error" {
				t.Errorf("Expected 500 Server error, got %d %s", out.StatusCode, out.Body)
			}
			entry := hook.LastEntry()
			if entry == nil || entry.Level != logrus.ErrorLevel || entry.Data["error"] != "test" {
				t.Errorf("Expected routing error to be logged, got %v", entry)
			}
		})
	}
}

func TestAdapterErrorAfterTermination(t *testing.T) {
	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		res.Status(http.StatusAccepted).Send("accepted")
		next(errors.New("late failure"))
	})))

	out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.StatusCode != http.StatusAccepted || out.Body != "accepted" {
		t.Errorf("Expected the terminated response to win, got %d %s", out.StatusCode, out.Body)
	}
}

func TestAdapterCookies(t *testing.T) {
	adapter, _ := testAdapter(Chain(
		Use(func(req *Request, res *Response, next NextFunc) {
			res.Cookie("name", "value", &CookieOptions{HttpOnly: true, Path: "/x"})
			next(nil)
		}),
		Use(func(req *Request, res *Response, next NextFunc) {
			res.Cookie("theme", "dark", nil)
			res.Send("ok")
		}),
	))

	out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	cookies := out.MultiValueHeaders["Set-Cookie"]
	if len(cookies) != 2 {
		t.Fatalf("Expected two cookies, got %v", cookies)
	}
	if cookies[0] != "name=value; Path=/x; HttpOnly" || cookies[1] != "theme=dark; Path=/" {
		t.Errorf("Expected cookies in stage order, got %v", cookies)
	}
}

func TestAdapterCallback(t *testing.T) {
	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		res.Send("via callback")
	})))

	calls := 0
	var got *Artifact
	out, err := adapter.Invoke(context.Background(), proxyEvent(), func(err error, out *Artifact) {
		calls++
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		got = out
	})

	if out != nil || err != nil {
		t.Errorf("Expected nil return with a callback, got %v %v", out, err)
	}
	if calls != 1 {
		t.Errorf("Expected callback once, got %d", calls)
	}
	if got == nil || got.Body != "via callback" {
		t.Errorf("Expected artifact via callback, got %+v", got)
	}
}

func TestAdapterAsyncMiddleware(t *testing.T) {
	adapter, _ := testAdapter(Chain(
		Use(func(req *Request, res *Response, next NextFunc) {
			go func() {
				time.Sleep(5 * time.Millisecond)
				req.Locals().Set("loaded", "yes")
				next(nil)
			}()
		}),
		Use(func(req *Request, res *Response, next NextFunc) {
			res.Send(req.Locals().GetString("loaded"))
		}),
	))

	out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.Body != "yes" {
		t.Errorf("Expected body yes, got %s", out.Body)
	}
}

func TestAdapterTimeout(t *testing.T) {
	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {})))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	out, err := adapter.Invoke(ctx, proxyEvent(), nil)
	if out != nil {
		t.Errorf("Expected no artifact, got %+v", out)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestAdapterUsageError(t *testing.T) {
	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		res.Send("once")
		res.Send("twice")
	})))

	out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
	if out != nil {
		t.Errorf("Expected no artifact, got %+v", out)
	}
	if !errors.Is(err, ErrWriteAfterEnd) {
		t.Errorf("Expected write after end, got %v", err)
	}

	adapter, _ = testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		req.Get("")
	})))
	if _, err := adapter.Invoke(context.Background(), proxyEvent(), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
}

func TestAdapterOnFinished(t *testing.T) {
	t.Run("replaces artifact", func(t *testing.T) {
		var seen *Artifact
		adapter, _ := testAdapter(
			Chain(Use(func(req *Request, res *Response, next NextFunc) {
				res.Send("original")
			})),
			WithOnFinished(func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
				seen = out
				return &Artifact{StatusCode: http.StatusOK, Body: "replaced"}, nil
			}),
		)

		out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if seen == nil || seen.Body != "original" {
			t.Errorf("Expected hook to see the original artifact, got %+v", seen)
		}
		if out.Body != "replaced" {
			t.Errorf("Expected replaced body, got %s", out.Body)
		}
	})

	t.Run("keeps artifact", func(t *testing.T) {
		adapter, _ := testAdapter(
			Chain(Use(func(req *Request, res *Response, next NextFunc) {
				res.Send("original")
			})),
			WithOnFinished(func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
				return nil, nil
			}),
		)

		out, _ := adapter.Invoke(context.Background(), proxyEvent(), nil)
		if out.Body != "original" {
			t.Errorf("Expected original body, got %s", out.Body)
		}
	})

	failing := []struct {
		name string
		hook OnFinishedFunc
	}{
		{"hook error", func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
			return nil, errors.New("hook failed")
		}},
		{"hook error with artifact", func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
			return &Artifact{Body: "ignored"}, errors.New("hook failed")
		}},
		{"hook panic", func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
			panic("hook failed")
		}},
	}

	for _, tt := range failing {
		t.Run(tt.name, func(t *testing.T) {
			adapter, hook := testAdapter(
				Chain(Use(func(req *Request, res *Response, next NextFunc) {
					res.Send("original")
				})),
				WithOnFinished(tt.hook),
			)

			out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if out.Body != "original" {
				t.Errorf("Expected original body, got %s", out.Body)
			}
			entry := hook.LastEntry()
			if entry == nil || entry.Message != "Error in onFinished hook" {
				t.Errorf("Expected hook failure to be logged, got %v", entry)
			}
		})
	}
}

func TestAdapterNotAcceptable(t *testing.T) {
	chain := Chain(Use(func(req *Request, res *Response, next NextFunc) {
		res.Format(
			On("application/json", func(req *Request, res *Response) { res.JSON("{}") }),
			On("text/html", func(req *Request, res *Response) { res.Send("<p/>") }),
		)
	}))
	event := proxyEvent()
	event.Headers["Accept"] = "image/jpeg"

	adapter, _ := testAdapter(chain)

	_, err := adapter.Invoke(context.Background(), event, nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusNotAcceptable {
		t.Fatalf("Expected 406 HTTPError, got %v", err)
	}
	if len(httpErr.Types) != 2 {
		t.Errorf("Expected two attempted types, got %v", httpErr.Types)
	}

	out, err := adapter.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Expected Handle to render the failure, got %v", err)
	}
	if out.StatusCode != http.StatusNotAcceptable || out.Body != "Not Acceptable" {
		t.Errorf("Expected 406 Not Acceptable, got %d %s", out.StatusCode, out.Body)
	}
}

func TestAdapterHandleV2(t *testing.T) {
	var seen *Request
	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		seen = req
		res.Cookie("a", "1", nil).Cookie("b", "2", nil)
		res.Status(http.StatusCreated).Send("created")
	})))

	event := events.APIGatewayV2HTTPRequest{
		RouteKey:       "POST /items",
		RawPath:        "/items",
		RawQueryString: "tag=a&tag=b&page=2",
		Cookies:        []string{"session=xyz", "theme=dark"},
		Headers:        map[string]string{"content-type": "text/plain"},
		QueryStringParameters: map[string]string{
			"tag":  "a,b",
			"page": "2",
		},
		Body: "hello",
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			RequestID: "req-1",
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:   "POST",
				Path:     "/items",
				SourceIP: "192.0.2.1",
			},
		},
	}

	out, err := adapter.HandleV2(context.Background(), event)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.StatusCode != http.StatusCreated || out.Body != "created" {
		t.Errorf("Expected 201 created, got %d %s", out.StatusCode, out.Body)
	}
	if len(out.Cookies) != 2 || out.Cookies[0] != "a=1; Path=/" {
		t.Errorf("Expected cookies moved to Cookies, got %v", out.Cookies)
	}
	if _, ok := out.MultiValueHeaders["Set-Cookie"]; ok {
		t.Error("Expected Set-Cookie to be removed from multi-value headers")
	}

	if seen.Method != "POST" || seen.Path != "/items" {
		t.Errorf("Expected POST /items, got %s %s", seen.Method, seen.Path)
	}
	if got := seen.Get("cookie"); got != "session=xyz; theme=dark" {
		t.Errorf("Expected joined cookie header, got %s", got)
	}
	if got := seen.QueryValues("tag"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected repeated tag values, got %v", got)
	}
	if seen.IP != "192.0.2.1" {
		t.Errorf("Expected source ip 192.0.2.1, got %s", seen.IP)
	}
	if got := seen.Get("content-length"); got != "5" {
		t.Errorf("Expected content-length 5, got %s", got)
	}
}

func TestJoinOnFinished(t *testing.T) {
	var order []string
	hook := JoinOnFinished(
		func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
			order = append(order, "observe:"+out.Body)
			return nil, nil
		},
		nil,
		func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
			order = append(order, "replace")
			return &Artifact{StatusCode: http.StatusOK, Body: "wrapped " + out.Body}, nil
		},
		func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
			order = append(order, "observe:"+out.Body)
			return nil, nil
		},
	)

	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		res.Send("body")
	})), WithOnFinished(hook))

	out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.Body != "wrapped body" {
		t.Errorf("Expected wrapped body, got %s", out.Body)
	}
	want := []string{"observe:body", "replace", "observe:wrapped body"}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, order)
		}
	}
}

func TestJoinOnFinishedKeepsReplacementOnError(t *testing.T) {
	hook := JoinOnFinished(
		func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
			return &Artifact{StatusCode: http.StatusCreated, Body: "replaced"}, nil
		},
		func(ctx context.Context, err error, out *Artifact, req *Request, res *Response) (*Artifact, error) {
			return nil, errors.New("metrics unavailable")
		},
	)

	adapter, _ := testAdapter(Chain(Use(func(req *Request, res *Response, next NextFunc) {
		res.Send("orig")
	})), WithOnFinished(hook))

	out, err := adapter.Invoke(context.Background(), proxyEvent(), nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.StatusCode != http.StatusCreated || out.Body != "replaced" {
		t.Errorf("Expected replaced artifact to survive the failing hook, got %d %s", out.StatusCode, out.Body)
	}
}
