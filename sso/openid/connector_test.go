package openid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/clovershell/onedev/internal/httpclient"
	"github.com/clovershell/onedev/sso"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "test-client"
	testClientSecret = "test-secret"
	testServerURL    = "https://server.test"
	testSessionID    = "session-1"
	testAuthCode     = "code-1234"
)

func testConnector(t *testing.T, p *TestProvider, groupsClaim string, opt ...Option) *Connector {
	t.Helper()
	p.SetClientCreds(testClientID, testClientSecret)
	p.SetExpectedAuthCode(testAuthCode)
	p.SetAllowedRedirectURIs([]string{sso.CallbackURL(testServerURL, "okta")})

	c, err := NewConnector(Config{
		Name:         "okta",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		IssuerURL:    p.Addr(),
		ServerURL:    testServerURL,
		ProviderCA:   p.CACert(),
		GroupsClaim:  groupsClaim,
	}, opt...)
	require.NoError(t, err)
	return c
}

// testAuthenticate drives the out-of-band part of the flow: it initiates a
// login and plays the browser round trip to the provider's authorization
// endpoint, returning the callback request the provider redirects back
// with.
func testAuthenticate(t *testing.T, c *Connector, p *TestProvider, sessionID string) *http.Request {
	t.Helper()
	require := require.New(t)

	authURL, err := c.InitiateLogin(context.Background(), sessionID)
	require.NoError(err)

	return testFollowAuthURL(t, p, authURL)
}

// testFollowAuthURL requests the authorization URL the way a browser would
// and converts the provider's redirect into the callback request.
func testFollowAuthURL(t *testing.T, p *TestProvider, authURL string) *http.Request {
	t.Helper()
	require := require.New(t)

	client, err := httpclient.New(p.CACert())
	require.NoError(err)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)

	location := resp.Header.Get("Location")
	require.NotEmpty(location)
	return httptest.NewRequest(http.MethodGet, location, nil)
}

func TestConnector_InitiateLogin(t *testing.T) {
	t.Parallel()
	t.Run("authorization-url", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testConnector(t, p, "")

		authURL, err := c.InitiateLogin(context.Background(), testSessionID)
		require.NoError(err)

		u, err := url.Parse(authURL)
		require.NoError(err)
		assert.Equal(p.Addr()+"/auth", u.Scheme+"://"+u.Host+u.Path)

		q := u.Query()
		assert.Equal("code", q.Get("response_type"))
		assert.Equal("openid email profile", q.Get("scope"))
		assert.Equal(testClientID, q.Get("client_id"))
		assert.Equal(testServerURL+"/~sso/callback/okta", q.Get("redirect_uri"))
		assert.True(strings.HasPrefix(q.Get("state"), "oidc_"))
		assert.True(strings.HasPrefix(q.Get("nonce"), "n_"))
		assert.NotEqual(q.Get("state"), q.Get("nonce"))
	})

	t.Run("groups-claim-added-to-scope", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testConnector(t, p, "groups")

		authURL, err := c.InitiateLogin(context.Background(), testSessionID)
		require.NoError(err)
		u, err := url.Parse(authURL)
		require.NoError(err)
		assert.Equal("openid email profile groups", u.Query().Get("scope"))
	})

	t.Run("state-is-attempt-unique", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testConnector(t, p, "")

		first, err := c.InitiateLogin(context.Background(), testSessionID)
		require.NoError(err)
		second, err := c.InitiateLogin(context.Background(), testSessionID)
		require.NoError(err)

		firstURL, err := url.Parse(first)
		require.NoError(err)
		secondURL, err := url.Parse(second)
		require.NoError(err)
		assert.NotEqual(firstURL.Query().Get("state"), secondURL.Query().Get("state"))
		assert.NotEqual(firstURL.Query().Get("nonce"), secondURL.Query().Get("nonce"))
	})

	t.Run("discovery-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.OmitTokenEndpoint()
		c := testConnector(t, p, "")

		_, err := c.InitiateLogin(context.Background(), testSessionID)
		require.Error(err)
		assert.True(errors.Is(err, ErrDiscovery))
	})
}

func TestConnector_ProcessCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("end-to-end", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetReplySubject("u123")
		p.SetReplyUserinfo(map[string]interface{}{
			"sub":                "u123",
			"email":              "jane@example.com",
			"preferred_username": "jane",
		})
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		got, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.NoError(err)
		assert.Equal("jane", got.UserName)
		assert.Equal("jane@example.com", got.Email)
		assert.Empty(got.FullName)
		assert.Nil(got.GroupNames)
		assert.Equal("okta", got.ConnectorName)
	})

	t.Run("end-to-end-with-groups", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetReplySubject("u123")
		p.SetReplyUserinfo(map[string]interface{}{
			"sub":    "u123",
			"email":  "jane@example.com",
			"groups": []interface{}{"eng", "ops"},
		})
		c := testConnector(t, p, "groups")

		callback := testAuthenticate(t, c, p, testSessionID)
		got, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.NoError(err)
		assert.Equal([]string{"eng", "ops"}, got.GroupNames)
	})

	t.Run("provider-error-response", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testConnector(t, p, "")

		callback := httptest.NewRequest(http.MethodGet,
			c.CallbackURL()+"?state=whatever&error=access_denied&error_description=user+denied+access", nil)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		var providerErr *ProviderError
		require.True(errors.As(err, &providerErr))
		assert.Equal("access_denied", providerErr.Code)
		assert.Equal("user denied access", providerErr.Description)
	})

	t.Run("state-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		q := callback.URL.Query()
		q.Set("state", "oidc_forged")
		callback.URL.RawQuery = q.Encode()

		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrUnsolicitedResponse))
	})

	t.Run("no-login-in-flight", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testConnector(t, p, "")

		callback := httptest.NewRequest(http.MethodGet,
			c.CallbackURL()+"?state=oidc_abc&code="+testAuthCode, nil)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrUnsolicitedResponse))
	})

	t.Run("superseded-attempt", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testConnector(t, p, "")

		firstAuthURL, err := c.InitiateLogin(ctx, testSessionID)
		require.NoError(err)
		_, err = c.InitiateLogin(ctx, testSessionID)
		require.NoError(err)

		// the first tab's callback arrives after its attempt was superseded
		callback := testFollowAuthURL(t, p, firstAuthURL)
		_, err = c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrUnsolicitedResponse))
	})

	t.Run("attempt-is-single-use", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetReplySubject("u123")
		p.SetReplyUserinfo(map[string]interface{}{
			"sub":   "u123",
			"email": "jane@example.com",
		})
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.NoError(err)

		// replaying the exact same callback must fail
		_, err = c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrUnsolicitedResponse))
	})

	t.Run("attempt-cleared-after-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetReplyUserinfo(map[string]interface{}{
			"sub": "someone-else",
		})
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrSubjectMismatch))

		_, err = c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrUnsolicitedResponse))
	})

	t.Run("token-exchange-rejected", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		p.SetExpectedAuthCode("a-different-code")

		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrTokenExchange))
		var providerErr *ProviderError
		require.True(errors.As(err, &providerErr))
		assert.Equal("invalid_grant", providerErr.Code)
	})

	t.Run("missing-id-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.OmitIDTokens()
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrMissingIDToken))
	})

	t.Run("issuer-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetCustomClaims(map[string]interface{}{"iss": "https://evil.test"})
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrIssuerMismatch))
	})

	t.Run("expired-id-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetCustomClaims(map[string]interface{}{"exp": time.Now().Add(-time.Hour).Unix()})
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrTokenExpired))
	})

	t.Run("id-token-issued-in-the-future", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetCustomClaims(map[string]interface{}{"iat": time.Now().Add(time.Minute).Unix()})
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrInvalidIssueTime))
	})

	t.Run("subject-mismatch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetReplySubject("u123")
		p.SetReplyUserinfo(map[string]interface{}{
			"sub":                "someone-else",
			"email":              "jane@example.com",
			"preferred_username": "jane",
		})
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrSubjectMismatch))
	})

	t.Run("userinfo-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetUserinfoError(http.StatusInternalServerError, "server_error", "userinfo exploded")
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrUserInfo))
		var providerErr *ProviderError
		require.True(errors.As(err, &providerErr))
		assert.Equal("server_error", providerErr.Code)
		assert.Equal("userinfo exploded", providerErr.Description)
	})

	t.Run("missing-email-claim", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetReplySubject("u123")
		p.SetReplyUserinfo(map[string]interface{}{
			"sub":                "u123",
			"preferred_username": "jane",
		})
		c := testConnector(t, p, "")

		callback := testAuthenticate(t, c, p, testSessionID)
		_, err := c.ProcessCallback(ctx, testSessionID, callback)
		require.Error(err)
		assert.True(errors.Is(err, ErrMissingEmailClaim))
	})
}

func TestConnector_accessors(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, err := NewConnector(Config{
		Name:         "okta",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		IssuerURL:    "https://idp.test",
		ServerURL:    testServerURL,
	})
	require.NoError(err)
	assert.Equal("okta", c.Name())
	assert.Equal(testServerURL+"/~sso/callback/okta", c.CallbackURL())
	assert.Equal(DefaultButtonImageURL, c.ButtonImageURL())
	assert.False(c.IsManagingMemberships())

	withGroups, err := NewConnector(Config{
		Name:         "okta",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		IssuerURL:    "https://idp.test",
		ServerURL:    testServerURL,
		GroupsClaim:  "groups",
	})
	require.NoError(err)
	assert.True(withGroups.IsManagingMemberships())
}
