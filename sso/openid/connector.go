package openid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clovershell/onedev/internal/httpclient"
	"github.com/clovershell/onedev/sso"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
	"golang.org/x/oauth2"
)

// Connector drives the OpenID Connect authorization code flow: it discovers
// the provider's endpoints, redirects the browser to the authorization
// endpoint, and on callback exchanges the authorization code, validates the
// id_token, fetches userinfo claims and assembles the authenticated
// identity.
//
// The id_token is trusted because it is retrieved over a direct TLS channel
// to the token endpoint; its signature is not verified against the
// provider's published keys.
type Connector struct {
	config   Config
	attempts *AttemptStore
	client   *http.Client
	nowFunc  func() time.Time
	logger   hclog.Logger
}

// Connector implements the sso.Connector capability interface.
var _ sso.Connector = (*Connector)(nil)

// NewConnector creates a Connector for the given configuration.
//
// Supported options: WithNow, WithHTTPClient, WithLogger.
func NewConnector(config Config, opt ...Option) (*Connector, error) {
	const op = "openid.NewConnector"
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid connector config: %w", op, err)
	}
	if config.ButtonImageURL == "" {
		config.ButtonImageURL = DefaultButtonImageURL
	}
	opts := getConnectorOpts(opt...)

	client := opts.withHTTPClient
	if client == nil {
		var err error
		client, err = httpclient.New(config.ProviderCA)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
	}
	logger := opts.withLogger
	if logger == nil {
		logger = hclog.Default()
	}
	nowFunc := opts.withNowFunc
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Connector{
		config:   config,
		attempts: NewAttemptStore(),
		client:   client,
		nowFunc:  nowFunc,
		logger:   logger.Named("openid").With("connector", config.Name),
	}, nil
}

// Name returns the connector's name.
func (c *Connector) Name() string { return c.config.Name }

// IsManagingMemberships reports whether a groups claim is configured, in
// which case group memberships of authenticated users are managed by the
// provider.
func (c *Connector) IsManagingMemberships() bool { return c.config.GroupsClaim != "" }

// ButtonImageURL returns the image to show on the login button.
func (c *Connector) ButtonImageURL() string { return c.config.ButtonImageURL }

// CallbackURL returns the URL the provider redirects the browser back to
// after authentication.  It must be registered with the provider and is
// sent unchanged as redirect_uri in both the authorization request and the
// token exchange.
func (c *Connector) CallbackURL() string {
	return sso.CallbackURL(c.config.ServerURL, c.config.Name)
}

// scopes returns the scopes requested of the provider: the required openid
// scope, email and profile, plus the groups claim when one is configured.
func (c *Connector) scopes() []string {
	scopes := []string{oidc.ScopeOpenID, "email", "profile"}
	if c.config.GroupsClaim != "" {
		scopes = append(scopes, c.config.GroupsClaim)
	}
	return scopes
}

// oauth2Config composes the oauth2 client configuration from the provider
// metadata cached for the attempt.  AuthStyleInHeader makes the token
// exchange authenticate with HTTP basic auth.
func (c *Connector) oauth2Config(md *ProviderMetadata) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: string(c.config.ClientSecret),
		RedirectURL:  c.CallbackURL(),
		Scopes:       c.scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   md.AuthorizationEndpoint,
			TokenURL:  md.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// InitiateLogin starts a new login attempt for the browser session: it
// discovers the provider's endpoints, stores the attempt's anti-replay
// state and metadata against the session, and returns the authorization
// URL to redirect the browser to.
func (c *Connector) InitiateLogin(ctx context.Context, sessionID string) (string, error) {
	const op = "openid.Connector.InitiateLogin"
	metadata, err := Discover(ctx, c.client, c.config.IssuerURL)
	if err != nil {
		c.logger.Error("error discovering provider metadata", "err", err)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	state, err := newID("oidc")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	nonce, err := newID("n")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	// Both fields are stored before the redirect is issued; the callback
	// rejects the attempt unless both are present.
	c.attempts.Begin(sessionID, LoginAttempt{
		State:    state,
		Metadata: metadata,
	})

	return c.oauth2Config(metadata).AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// ProcessCallback consumes the provider's authentication response for the
// browser session.  The steps run strictly in order: parse the response,
// validate the anti-replay state, exchange the authorization code, validate
// the id_token claims, fetch userinfo, and assemble the identity.  The
// attempt state is cleared regardless of outcome, so a fresh login is
// required after any failure.
func (c *Connector) ProcessCallback(ctx context.Context, sessionID string, req *http.Request) (*sso.Authenticated, error) {
	const op = "openid.Connector.ProcessCallback"

	// Single use: the attempt is consumed up front so no terminal state,
	// success or failure, leaves it replayable.
	attempt, inFlight := c.attempts.Consume(sessionID)

	query := req.URL.Query()
	if errorCode := query.Get("error"); errorCode != "" {
		return nil, &ProviderError{
			Code:        errorCode,
			Description: query.Get("error_description"),
		}
	}

	responseState := query.Get("state")
	if !inFlight || responseState == "" || responseState != attempt.State {
		return nil, fmt.Errorf("%s: %w", op, ErrUnsolicitedResponse)
	}

	token, err := c.exchangeCode(ctx, attempt.Metadata, query.Get("code"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	claims, err := c.validateIDToken(token, attempt.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userInfo, err := c.fetchUserInfo(ctx, attempt.Metadata, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub, _ := userInfo["sub"].(string); sub != claims.Subject {
		return nil, fmt.Errorf("%s: %w", op, ErrSubjectMismatch)
	}

	authenticated, err := c.assembleIdentity(userInfo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return authenticated, nil
}

// exchangeCode posts the authorization code to the token endpoint cached in
// the attempt's provider metadata, authenticating with HTTP basic auth and
// sending the original callback URL as redirect_uri.  Provider rejections
// are reported as *ProviderError wrapping ErrTokenExchange; transport and
// parse faults are wrapped as-is and not retried.
func (c *Connector) exchangeCode(ctx context.Context, md *ProviderMetadata, code string) (*oauth2.Token, error) {
	oidcCtx := oidc.ClientContext(ctx, c.client)
	token, err := c.oauth2Config(md).Exchange(oidcCtx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &ProviderError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
				step:        ErrTokenExchange,
			}
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	return token, nil
}

// validateIDToken extracts the id_token claims from the token response and
// enforces issuer consistency with the cached provider metadata, the issue
// time bound, and expiry.
func (c *Connector) validateIDToken(token *oauth2.Token, md *ProviderMetadata) (*idTokenClaims, error) {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, ErrMissingIDToken
	}
	claims, err := parseIDTokenClaims(rawIDToken)
	if err != nil {
		return nil, err
	}
	if err := claims.validate(md.Issuer, c.nowFunc()); err != nil {
		return nil, err
	}
	return claims, nil
}

// fetchUserInfo gets the userinfo endpoint with the bearer access token.
// Non-success responses are reported as *ProviderError wrapping ErrUserInfo
// with the provider's error object when one is returned.
func (c *Connector) fetchUserInfo(ctx context.Context, md *ProviderMetadata, accessToken string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, md.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errorBody struct {
			Code        string `json:"error"`
			Description string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return nil, &ProviderError{
			Code:        errorBody.Code,
			Description: errorBody.Description,
			step:        ErrUserInfo,
		}
	}

	var userInfo map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, fmt.Errorf("%w: unable to parse userinfo response: %w", ErrUserInfo, err)
	}
	return userInfo, nil
}

// newID generates a prefixed random id suitable for a state or nonce value.
func newID(prefix string) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	return prefix + "_" + id, nil
}
