// Package api provides typed wrappers for the Taplinks REST endpoints.
//
// Every method issues exactly one request, classifies the outcome with
// apiclient.Call and unwraps the data field of the success envelope. There
// are no retries and no caching.
package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/florianilch/taplinks-cli/internal/apiclient"
	"github.com/florianilch/taplinks-cli/internal/model"
)

// Doer sends a single API request. *apiclient.Client implements it.
type Doer interface {
	Do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error)
}

// Compile-time check that the API client satisfies Doer.
var _ Doer = (*apiclient.Client)(nil)

// Services bundles every API service. Auth uses the unauthenticated client,
// everything else the authenticated one.
type Services struct {
	Auth            *AuthService
	PaymentRequests *PaymentRequestService
	Analytics       *AnalyticsService
	Vendor          *VendorService
}

// New creates all services.
func New(client, authClient Doer) *Services {
	return &Services{
		Auth:            NewAuthService(authClient),
		PaymentRequests: &PaymentRequestService{client: client},
		Analytics:       &AnalyticsService{client: client},
		Vendor:          &VendorService{client: client},
	}
}

// call classifies the outcome of send and returns the data of the success
// envelope. Parameter formatting belongs inside send so that its failures
// are classified like any other.
func call[T any](ctx context.Context, send func(context.Context) (*http.Response, error)) (T, error) {
	resp, err := apiclient.Call[model.Response[T]](ctx, send)
	if err != nil {
		var zero T
		return zero, err
	}
	return resp.Data, nil
}

// queryParams encodes form-style query parameters in the given order.
// Values are formatted the same way as generated OpenAPI clients do.
func queryParams(params ...any) (url.Values, error) {
	if len(params)%2 != 0 {
		return nil, fmt.Errorf("odd number of query parameter arguments")
	}

	values := url.Values{}
	for i := 0; i < len(params); i += 2 {
		name, ok := params[i].(string)
		if !ok {
			return nil, fmt.Errorf("query parameter name at %d is not a string", i)
		}

		frag, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, params[i+1])
		if err != nil {
			return nil, fmt.Errorf("invalid format for parameter %s: %w", name, err)
		}
		parsed, err := url.ParseQuery(frag)
		if err != nil {
			return nil, fmt.Errorf("invalid format for parameter %s: %w", name, err)
		}
		for k, vs := range parsed {
			for _, v := range vs {
				values.Add(k, v)
			}
		}
	}
	return values, nil
}

// pathParam formats and escapes a single path segment. Dot segments are
// percent-encoded so that resolving the path cannot remove them.
func pathParam(name string, value any) (string, error) {
	seg, err := runtime.StyleParamWithLocation("simple", false, name, runtime.ParamLocationPath, value)
	if err != nil {
		return "", fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	if seg == "." || seg == ".." {
		seg = strings.Repeat("%2E", len(seg))
	}
	return seg, nil
}
