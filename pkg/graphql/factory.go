package graphql

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/unraidmate/console/pkg/metrics"
	"github.com/unraidmate/console/pkg/models"
)

// DefaultBuildTimeout bounds client construction
const DefaultBuildTimeout = 5 * time.Second

// CredentialSource supplies the active server credentials
type CredentialSource interface {
	GetActive(ctx context.Context) *models.Credentials
}

// Factory builds clients bound to the active server
type Factory struct {
	creds          CredentialSource
	buildTimeout   time.Duration
	requestTimeout time.Duration
	transport      http.RoundTripper
}

// FactoryConfig holds factory parameters. Zero values use defaults.
type FactoryConfig struct {
	BuildTimeout   time.Duration
	RequestTimeout time.Duration
	Transport      http.RoundTripper
}

// NewFactory creates a factory reading credentials from creds
func NewFactory(creds CredentialSource, cfg FactoryConfig) *Factory {
	if cfg.BuildTimeout == 0 {
		cfg.BuildTimeout = DefaultBuildTimeout
	}
	return &Factory{
		creds:          creds,
		buildTimeout:   cfg.BuildTimeout,
		requestTimeout: cfg.RequestTimeout,
		transport:      cfg.Transport,
	}
}

// ForCredentials builds a standalone client for c, independent of the
// active server. Used for throwaway validation clients.
func (f *Factory) ForCredentials(c models.Credentials) *Client {
	return NewClient(Options{
		Endpoint:  c.ServerAddress,
		APIKey:    StaticKey(c.APIKey),
		Transport: f.transport,
		Timeout:   f.requestTimeout,
	})
}

// Build returns a client for the active credentials. With no credentials it
// returns a disconnected client. If construction does not finish within the
// build timeout the disconnected client is returned instead.
func (f *Factory) Build(ctx context.Context) *Client {
	ctx, cancel := context.WithTimeout(ctx, f.buildTimeout)
	defer cancel()

	result := make(chan *Client, 1)
	go func() {
		result <- f.build(ctx)
	}()

	select {
	case c := <-result:
		if c.Configured() {
			metrics.ClientRebuilds.WithLabelValues("connected").Inc()
		} else {
			metrics.ClientRebuilds.WithLabelValues("disconnected").Inc()
		}
		return c
	case <-ctx.Done():
		log.Printf("[graphql] client build did not finish in %s, using disconnected client", f.buildTimeout)
		metrics.ClientRebuilds.WithLabelValues("timeout").Inc()
		return Disconnected()
	}
}

func (f *Factory) build(ctx context.Context) *Client {
	active := f.creds.GetActive(ctx)
	if active == nil {
		log.Printf("[graphql] no active server, building disconnected client")
		return Disconnected()
	}

	fallbackKey := active.APIKey
	keyFunc := func(reqCtx context.Context) string {
		// Read fresh so a rotated key applies to this client
		if c := f.creds.GetActive(reqCtx); c != nil && c.ServerAddress == active.ServerAddress {
			return c.APIKey
		}
		return fallbackKey
	}

	log.Printf("[graphql] client bound to %s (key %s)", active.ServerAddress, models.MaskKey(active.APIKey))
	return NewClient(Options{
		Endpoint:  active.ServerAddress,
		APIKey:    keyFunc,
		Transport: f.transport,
		Timeout:   f.requestTimeout,
	})
}
