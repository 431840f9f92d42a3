package graphql

import (
	"context"
	"log"
	"net/http"
)

// APIKeyHeader carries the Unraid API key
const APIKeyHeader = "x-api-key"

// KeyFunc returns the API key to send with a request. It is called on
// every request so a rotated key takes effect without a rebuild.
type KeyFunc func(ctx context.Context) string

// StaticKey returns a KeyFunc that always yields key
func StaticKey(key string) KeyFunc {
	return func(context.Context) string { return key }
}

// authTransport injects the API key header
type authTransport struct {
	base   http.RoundTripper
	apiKey KeyFunc
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if key := t.apiKey(req.Context()); key != "" {
		r.Header.Set(APIKeyHeader, key)
	}
	return t.base.RoundTrip(r)
}

// loggingTransport logs transport failures and error statuses. It never
// alters the response or the error.
type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		log.Printf("[graphql] network error: %s %s: %v", req.Method, req.URL.Redacted(), err)
		return resp, err
	}
	if resp.StatusCode >= 400 {
		log.Printf("[graphql] %s %s returned status %d", req.Method, req.URL.Redacted(), resp.StatusCode)
	}
	return resp, err
}

// newPipeline chains auth -> logging -> base
func newPipeline(base http.RoundTripper, apiKey KeyFunc) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{
		base:   &loggingTransport{base: base},
		apiKey: apiKey,
	}
}
