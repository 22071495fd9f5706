package lambda

import (
	"context"
	"errors"
	"io"
	"testing"
)

func newTestEvent() Event {
	return Event{
		Body: `{"a":1}`,
		Headers: map[string]string{
			"Content-Type":   "application/json",
			"Content-Length": "7",
			"X-Header":       "value2",
		},
		MultiValueHeaders: map[string][]string{
			"Content-Type":   {"application/json"},
			"Content-Length": {"7"},
			"X-Header":       {"value1", "value2"},
		},
		HTTPMethod: "POST",
		Path:       "/path",
		QueryStringParameters: map[string]string{
			"a": "1",
			"b": "2",
		},
		MultiValueQueryStringParameters: map[string][]string{
			"a": {"1"},
			"b": {"1", "2"},
		},
	}
}

func withHeader(event Event, name, value string) Event {
	event.Headers[name] = value
	event.MultiValueHeaders[name] = []string{value}
	return event
}

func withoutHeader(event Event, name string) Event {
	delete(event.Headers, name)
	delete(event.MultiValueHeaders, name)
	return event
}

func TestRequestQuery(t *testing.T) {
	req := NewRequest(context.Background(), newTestEvent())

	if got := req.QueryValue("a"); got != "1" {
		t.Errorf("Expected query a to be 1, got %s", got)
	}
	if got := req.QueryValue("b"); got != "1" {
		t.Errorf("Expected first value of query b to be 1, got %s", got)
	}
	if got := req.QueryValues("b"); len(got) != 2 || got[1] != "2" {
		t.Errorf("Expected query b values [1 2], got %v", got)
	}
}

func TestRequestEmptyMaps(t *testing.T) {
	event := newTestEvent()
	event.MultiValueQueryStringParameters = nil
	event.QueryStringParameters = map[string]string{}
	event.MultiValueHeaders = nil
	event.Headers = map[string]string{}
	event.Body = ""

	req := NewRequest(context.Background(), event)

	if req.Query == nil || req.Query.Len() != 0 {
		t.Errorf("Expected empty query, got %v", req.Query)
	}
	if req.Headers == nil || len(req.Headers) != 0 {
		t.Errorf("Expected empty headers, got %v", req.Headers)
	}
	if req.Params == nil {
		t.Error("Expected path parameters to be an empty map")
	}
}

func TestRequestSingleAndMultiValueEquivalent(t *testing.T) {
	single := Event{
		Headers:               map[string]string{"X-Token": "abc", "Host": "example.com"},
		QueryStringParameters: map[string]string{"page": "2"},
	}
	multi := Event{
		MultiValueHeaders:               map[string][]string{"X-Token": {"abc"}, "Host": {"example.com"}},
		MultiValueQueryStringParameters: map[string][]string{"page": {"2"}},
	}

	a := NewRequest(context.Background(), single)
	b := NewRequest(context.Background(), multi)

	for _, name := range []string{"x-token", "X-TOKEN", "host"} {
		if a.Get(name) != b.Get(name) {
			t.Errorf("Expected header %s to match, got %q and %q", name, a.Get(name), b.Get(name))
		}
	}
	if a.QueryValue("page") != "2" || b.QueryValue("page") != "2" {
		t.Errorf("Expected page 2 for both, got %q and %q", a.QueryValue("page"), b.QueryValue("page"))
	}
	if a.Hostname != b.Hostname {
		t.Errorf("Expected hostnames to match, got %q and %q", a.Hostname, b.Hostname)
	}
}

func TestRequestHeaders(t *testing.T) {
	req := NewRequest(context.Background(), newTestEvent())

	if got := req.Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected application/json, got %s", got)
	}
	if got := req.Header("content-type"); got != "application/json" {
		t.Errorf("Expected application/json, got %s", got)
	}
	if got := req.Get("X-Header"); got != "value1" {
		t.Errorf("Expected first header value value1, got %s", got)
	}
	if got := req.Headers.Values("x-header"); len(got) != 2 {
		t.Errorf("Expected two values for x-header, got %v", got)
	}
}

func TestRequestGetEmptyName(t *testing.T) {
	req := NewRequest(context.Background(), newTestEvent())

	defer func() {
		v := recover()
		if v == nil {
			t.Fatal("Expected panic for empty header name")
		}
		err, ok := v.(error)
		if !ok || !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Expected ErrInvalidArgument, got %v", v)
		}
	}()
	req.Get("")
}

func TestRequestReferrer(t *testing.T) {
	t.Run("referer only", func(t *testing.T) {
		req := NewRequest(context.Background(), withHeader(newTestEvent(), "Referer", "muratcorlu.com"))
		if got := req.Get("referer"); got != "muratcorlu.com" {
			t.Errorf("Expected muratcorlu.com, got %s", got)
		}
		if got := req.Get("referrer"); got != "muratcorlu.com" {
			t.Errorf("Expected muratcorlu.com, got %s", got)
		}
	})

	t.Run("referrer preferred", func(t *testing.T) {
		event := withHeader(newTestEvent(), "Referer", "a.example")
		event = withHeader(event, "Referrer", "b.example")
		req := NewRequest(context.Background(), event)
		if got := req.Get("Referer"); got != "b.example" {
			t.Errorf("Expected b.example, got %s", got)
		}
	})
}

func TestRequestDerivedFields(t *testing.T) {
	event := newTestEvent()
	event = withHeader(event, "X-Forwarded-Proto", "https")
	event = withHeader(event, "X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	event = withHeader(event, "Host", "internal.local")
	event = withHeader(event, "X-Forwarded-Host", "api.example.com")
	event = withHeader(event, "X-Requested-With", "XMLHttpRequest")

	req := NewRequest(context.Background(), event)

	if req.Protocol != "https" || !req.Secure {
		t.Errorf("Expected https and secure, got %s and %v", req.Protocol, req.Secure)
	}
	if len(req.IPs) != 2 || req.IPs[1] != "10.0.0.1" {
		t.Errorf("Expected two forwarded ips, got %v", req.IPs)
	}
	if req.IP != "203.0.113.7" {
		t.Errorf("Expected client ip 203.0.113.7, got %s", req.IP)
	}
	if req.Hostname != "internal.local" {
		t.Errorf("Expected hostname internal.local, got %s", req.Hostname)
	}
	if req.Host != "api.example.com" {
		t.Errorf("Expected host api.example.com, got %s", req.Host)
	}
	if !req.XHR {
		t.Error("Expected XHR request")
	}
}

func TestRequestDerivedFieldDefaults(t *testing.T) {
	event := withHeader(newTestEvent(), "Host", "example.com")
	event.RequestContext.Identity.SourceIP = "198.51.100.4"

	req := NewRequest(context.Background(), event)

	if req.Protocol != "http" || req.Secure {
		t.Errorf("Expected plain http, got %s secure=%v", req.Protocol, req.Secure)
	}
	if req.Host != "example.com" {
		t.Errorf("Expected host to fall back to hostname, got %s", req.Host)
	}
	if req.IP != "198.51.100.4" {
		t.Errorf("Expected source ip fallback, got %s", req.IP)
	}
	if req.XHR {
		t.Error("Expected non-XHR request")
	}
}

func TestRequestIs(t *testing.T) {
	req := NewRequest(context.Background(), newTestEvent())

	if got, ok := req.Is("json"); !ok || got != "json" {
		t.Errorf("Expected json, got %q %v", got, ok)
	}
	if got, ok := req.Is("html", "json"); !ok || got != "json" {
		t.Errorf("Expected json, got %q %v", got, ok)
	}
	if got, ok := req.Is("html", "xml"); ok {
		t.Errorf("Expected no match, got %q", got)
	}
	if got, ok := req.Is("application/*"); !ok || got != "application/json" {
		t.Errorf("Expected application/json, got %q %v", got, ok)
	}

	noBody := newTestEvent()
	noBody.Body = ""
	noBody = withoutHeader(noBody, "Content-Length")
	if got, ok := NewRequest(context.Background(), noBody).Is("json"); ok {
		t.Errorf("Expected no match without body, got %q", got)
	}
}

func TestRequestAccepts(t *testing.T) {
	req := NewRequest(context.Background(), withHeader(newTestEvent(), "Accept", "application/json"))

	tests := []struct {
		types []string
		want  string
		ok    bool
	}{
		{[]string{"xml"}, "", false},
		{[]string{"text/xml"}, "", false},
		{[]string{"json"}, "json", true},
		{[]string{"application/json"}, "application/json", true},
		{[]string{"html", "json"}, "json", true},
		{[]string{"html, json"}, "json", true},
	}

	for _, tt := range tests {
		got, ok := req.Accepts(tt.types...)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Accepts(%v): expected %q %v, got %q %v", tt.types, tt.want, tt.ok, got, ok)
		}
	}
}

func TestRequestAcceptsWithoutHeader(t *testing.T) {
	req := NewRequest(context.Background(), newTestEvent())

	if got, ok := req.Accepts("html", "json"); !ok || got != "html" {
		t.Errorf("Expected first type html, got %q %v", got, ok)
	}
	if got := req.AcceptedTypes(); len(got) != 1 || got[0] != "*/*" {
		t.Errorf("Expected */*, got %v", got)
	}
}

func TestRequestAcceptsQuality(t *testing.T) {
	event := withHeader(newTestEvent(), "Accept", "text/html;q=0.5, application/json, */*;q=0.1")
	req := NewRequest(context.Background(), event)

	if got, ok := req.Accepts("html", "json"); !ok || got != "json" {
		t.Errorf("Expected json, got %q %v", got, ok)
	}
	if got, ok := req.Accepts("png", "html"); !ok || got != "html" {
		t.Errorf("Expected html, got %q %v", got, ok)
	}
	preferred := req.AcceptedTypes()
	if len(preferred) != 3 || preferred[0] != "application/json" || preferred[2] != "*/*" {
		t.Errorf("Expected preference order, got %v", preferred)
	}
}

func TestRequestAcceptsEncodingsCharsetsLanguages(t *testing.T) {
	event := withHeader(newTestEvent(), "Accept-Encoding", "gzip, compress;q=0.2")
	event = withHeader(event, "Accept-Charset", "utf-8, iso-8859-1;q=0.2, utf-7;q=0.5")
	event = withHeader(event, "Accept-Language", "en;q=0.8, es, tr")
	req := NewRequest(context.Background(), event)

	if got, ok := req.AcceptsEncodings("gzip", "compress"); !ok || got != "gzip" {
		t.Errorf("Expected gzip, got %q %v", got, ok)
	}
	if got, ok := req.AcceptsCharsets("utf-7", "utf-8"); !ok || got != "utf-8" {
		t.Errorf("Expected utf-8, got %q %v", got, ok)
	}
	if got, ok := req.AcceptsLanguages("tr", "en"); !ok || got != "tr" {
		t.Errorf("Expected tr, got %q %v", got, ok)
	}
	if got, ok := req.AcceptsLanguages("de"); ok {
		t.Errorf("Expected no language match, got %q", got)
	}
	if got := req.AcceptedLanguages(); len(got) != 3 || got[0] != "es" || got[2] != "en" {
		t.Errorf("Expected [es tr en], got %v", got)
	}
}

func TestRequestContentLength(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"ascii", `{"a":1}`, "7"},
		{"non-ascii", `{"text":"árvíztűrőtükörfúrógép😄"}`, "45"},
		{"japanese", `"Tシャツを3 枚購入しました。"`, "41"},
		{"special characters", `"🇨🇭🇺🇸🇯🇵🇭🇺🇬🇷🇵🇱∃⇔€🎉"`, "63"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := withoutHeader(newTestEvent(), "Content-Length")
			event.Body = tt.body

			req := NewRequest(context.Background(), event)
			if got := req.Get("content-length"); got != tt.want {
				t.Errorf("Expected content-length %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRequestContentLengthKept(t *testing.T) {
	event := withHeader(newTestEvent(), "Content-Length", "99")

	req := NewRequest(context.Background(), event)
	if got := req.Get("content-length"); got != "99" {
		t.Errorf("Expected explicit content-length 99, got %s", got)
	}
}

func TestRequestContentLengthEmpty(t *testing.T) {
	event := withHeader(newTestEvent(), "Content-Length", "")
	event.Body = "abc"

	req := NewRequest(context.Background(), event)
	if got := req.Get("content-length"); got != "3" {
		t.Errorf("Expected derived content-length 3, got %q", got)
	}
}

func TestRequestBodyStream(t *testing.T) {
	req := NewRequest(context.Background(), newTestEvent())

	data, err := io.ReadAll(req.Body())
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("Expected body {\"a\":1}, got %s", data)
	}

	again, err := io.ReadAll(req)
	if err != nil {
		t.Fatalf("Failed to read body again: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Expected body stream to be exhausted, got %s", again)
	}
	if req.RawBody() != `{"a":1}` {
		t.Errorf("Expected raw body to stay available, got %s", req.RawBody())
	}
}

func TestRequestLocals(t *testing.T) {
	req := NewRequest(context.Background(), newTestEvent())

	req.Locals().Set("fromFirstEndpoint", true)
	req.Locals().Set("user", "tobi")

	if v, ok := req.Locals().Get("fromFirstEndpoint"); !ok || v != true {
		t.Errorf("Expected fromFirstEndpoint true, got %v %v", v, ok)
	}
	if got := req.Locals().GetString("user"); got != "tobi" {
		t.Errorf("Expected user tobi, got %s", got)
	}
	if got := req.Locals().GetString("missing"); got != "" {
		t.Errorf("Expected empty string, got %s", got)
	}
}
