package openid

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"

	"github.com/clovershell/onedev/internal/strutils"
	"github.com/hashicorp/go-multierror"
)

// ClientSecret is a relying party secret.  Its string and json
// representations are redacted so a secret never ends up in logs.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for a client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (s ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (s ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultButtonImageURL is the image shown on the login button when the
// connector configuration doesn't specify one.
const DefaultButtonImageURL = "https://openid.net/images/logo/openid-icon-100x100.png"

// urlSegment matches names safe to use as a path segment of the callback
// URL.
var urlSegment = regexp.MustCompile(`^[\w\.-]+$`)

// Config is the configuration of one OpenID connector.  It is owned by the
// connector-settings subsystem; the connector only consumes it.
type Config struct {
	// Name is the connector name.  It is displayed on the login button and
	// forms the last segment of the callback URL, so it must be a URL-safe
	// segment.
	Name string

	// ClientID is the relying party id assigned by the provider when the
	// server was registered as a client application.
	ClientID string

	// ClientSecret is the relying party secret generated by the provider
	// when the server was registered as a client application.
	ClientSecret ClientSecret

	// IssuerURL is the provider's issuer URL.  The endpoints discovery URL
	// is constructed from it by appending /.well-known/openid-configuration.
	// Use the https scheme: token validity relies on TLS encryption.
	IssuerURL string

	// GroupsClaim optionally names the claim to retrieve groups of the
	// authenticated user from.  When empty, membership management is not
	// delegated to the connector.
	GroupsClaim string

	// ServerURL is the base URL of this server, used to compose the
	// provider's callback URL.
	ServerURL string

	// ProviderCA is an optional CA certificate PEM to use when sending
	// requests to the provider.
	ProviderCA string

	// ButtonImageURL is the image shown on the login button.  Defaults to
	// DefaultButtonImageURL.
	ButtonImageURL string
}

// Validate the connector configuration, reporting all violations together.
// It does not verify the issuer is actually discoverable; discovery happens
// once per login attempt.
func (c *Config) Validate() error {
	const op = "openid.Config.Validate"
	var result *multierror.Error
	if c.Name == "" {
		result = multierror.Append(result, fmt.Errorf("%s: name is empty", op))
	} else if !urlSegment.MatchString(c.Name) {
		result = multierror.Append(result, fmt.Errorf("%s: name %q is not a valid url segment", op, c.Name))
	}
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty", op))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client secret is empty", op))
	}
	switch {
	case c.IssuerURL == "":
		result = multierror.Append(result, fmt.Errorf("%s: issuer url is empty", op))
	default:
		u, err := url.Parse(c.IssuerURL)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: issuer url %s is invalid: %w", op, c.IssuerURL, err))
		} else if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) {
			result = multierror.Append(result, fmt.Errorf("%s: issuer url %s scheme is not http or https", op, c.IssuerURL))
		}
	}
	if c.ServerURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: server url is empty", op))
	}
	return result.ErrorOrNil()
}
