package lambda

import (
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// HandleV2 is the API Gateway HTTP API (payload format 2.0) entry point.
// The event is converted to a proxy event and Set-Cookie values of the
// result move into Cookies.
func (a *Adapter) HandleV2(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	out, err := a.Handle(ctx, FromV2(event))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}
	return ToV2(out), nil
}

// FromV2 converts an HTTP API event into a proxy event. Cookies are joined
// into a Cookie header and repeated query parameters are recovered from
// the raw query string.
func FromV2(event events.APIGatewayV2HTTPRequest) Event {
	headers := make(map[string]string, len(event.Headers)+1)
	for k, v := range event.Headers {
		headers[k] = v
	}
	if len(event.Cookies) > 0 {
		headers["cookie"] = strings.Join(event.Cookies, "; ")
	}

	var multiQuery map[string][]string
	if event.RawQueryString != "" {
		if parsed, err := url.ParseQuery(event.RawQueryString); err == nil {
			multiQuery = parsed
		}
	}

	path := event.RawPath
	if path == "" {
		path = event.RequestContext.HTTP.Path
	}

	rc := event.RequestContext
	return Event{
		Resource:                        event.RouteKey,
		Path:                            path,
		HTTPMethod:                      rc.HTTP.Method,
		Headers:                         headers,
		QueryStringParameters:           event.QueryStringParameters,
		MultiValueQueryStringParameters: multiQuery,
		PathParameters:                  event.PathParameters,
		StageVariables:                  event.StageVariables,
		Body:                            event.Body,
		IsBase64Encoded:                 event.IsBase64Encoded,
		RequestContext: events.APIGatewayProxyRequestContext{
			AccountID:        rc.AccountID,
			Stage:            rc.Stage,
			DomainName:       rc.DomainName,
			DomainPrefix:     rc.DomainPrefix,
			RequestID:        rc.RequestID,
			Protocol:         rc.HTTP.Protocol,
			Path:             rc.HTTP.Path,
			HTTPMethod:       rc.HTTP.Method,
			RequestTime:      rc.Time,
			RequestTimeEpoch: rc.TimeEpoch,
			APIID:            rc.APIID,
			Identity: events.APIGatewayRequestIdentity{
				SourceIP:  rc.HTTP.SourceIP,
				UserAgent: rc.HTTP.UserAgent,
			},
		},
	}
}

// ToV2 converts a proxy result into an HTTP API result
func ToV2(out Artifact) events.APIGatewayV2HTTPResponse {
	res := events.APIGatewayV2HTTPResponse{
		StatusCode:      out.StatusCode,
		Headers:         out.Headers,
		Body:            out.Body,
		IsBase64Encoded: out.IsBase64Encoded,
	}
	for k, values := range out.MultiValueHeaders {
		if strings.EqualFold(k, SetCookieHeader) {
			res.Cookies = append(res.Cookies, values...)
			continue
		}
		if res.MultiValueHeaders == nil {
			res.MultiValueHeaders = make(map[string][]string)
		}
		res.MultiValueHeaders[k] = values
	}
	return res
}
