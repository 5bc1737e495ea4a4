package openid

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default
// options and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

// connectorOptions is the set of available options for NewConnector.
type connectorOptions struct {
	withNowFunc    func() time.Time
	withHTTPClient *http.Client
	withLogger     hclog.Logger
}

// connectorDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func connectorDefaults() connectorOptions {
	return connectorOptions{}
}

// getConnectorOpts gets the defaults and applies the opt overrides passed
// in.
func getConnectorOpts(opt ...Option) connectorOptions {
	opts := connectorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithNow provides an optional time source used when validating id_token
// issue and expiration times.  Defaults to time.Now.
func WithNow(nowFunc func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*connectorOptions); ok {
			o.withNowFunc = nowFunc
		}
	}
}

// WithHTTPClient provides an optional http client used for all requests to
// the provider.  Defaults to a pooled client honoring Config.ProviderCA.
// The caller is responsible for configuring timeouts on it.
func WithHTTPClient(client *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*connectorOptions); ok {
			o.withHTTPClient = client
		}
	}
}

// WithLogger provides an optional logger for the connector.
func WithLogger(logger hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*connectorOptions); ok {
			o.withLogger = logger
		}
	}
}
