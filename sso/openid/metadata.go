package openid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ProviderMetadata is the immutable result of discovering a provider's
// endpoints.  It lives for one login attempt: resolved before the redirect,
// consumed when the callback arrives.
type ProviderMetadata struct {
	// Issuer is the provider's issuer identifier.  It must exactly match the
	// iss claim of id_tokens the provider returns.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL the browser is redirected to.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL the authorization code is exchanged at.
	TokenEndpoint string `json:"token_endpoint"`

	// UserInfoEndpoint is the URL userinfo claims are fetched from.
	UserInfoEndpoint string `json:"userinfo_endpoint"`
}

// WellKnownPath is the well-known discovery document path, relative to the
// issuer URL.
const WellKnownPath = "/.well-known/openid-configuration"

// Discover fetches and parses the provider's discovery document from
// <issuerURL>/.well-known/openid-configuration.  A trailing slash on the
// issuer URL is tolerated.  Any transport or parse failure, and any missing
// required field, is reported as ErrDiscovery wrapping the underlying cause.
// Results are not cached across attempts.
func Discover(ctx context.Context, client *http.Client, issuerURL string) (*ProviderMetadata, error) {
	const op = "openid.Discover"
	wellKnown := strings.TrimSuffix(issuerURL, "/") + WellKnownPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrDiscovery, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrDiscovery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w: %s returned status %d", op, ErrDiscovery, wellKnown, resp.StatusCode)
	}

	var md ProviderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return nil, fmt.Errorf("%s: %w: unable to parse discovery document: %w", op, ErrDiscovery, err)
	}

	for field, value := range map[string]string{
		"issuer":                 md.Issuer,
		"authorization_endpoint": md.AuthorizationEndpoint,
		"token_endpoint":         md.TokenEndpoint,
		"userinfo_endpoint":      md.UserInfoEndpoint,
	} {
		if value == "" {
			return nil, fmt.Errorf("%s: %w: discovery document has no %s", op, ErrDiscovery, field)
		}
	}
	return &md, nil
}
