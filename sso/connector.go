package sso

import (
	"context"
	"net/http"
)

// Connector is a single-sign-on connector capable of driving one external
// authentication flow: it sends the browser to the external provider and
// later consumes the provider's callback, producing a normalized
// Authenticated identity.
//
// A connector's Name() must be a URL-safe segment, since it forms the last
// segment of the connector's callback URL (see Handler).
type Connector interface {
	// Name returns the connector's unique name.
	Name() string

	// InitiateLogin starts a new login attempt for the given browser session
	// and returns the URL the browser must be redirected to.  Any state the
	// connector needs to correlate the later callback is stored against
	// sessionID before the URL is returned.
	InitiateLogin(ctx context.Context, sessionID string) (redirectURL string, err error)

	// ProcessCallback consumes the provider's callback request for the given
	// browser session.  It either returns the authenticated identity or an
	// error describing why the attempt failed.  A failed attempt is terminal:
	// the caller must start a fresh login via InitiateLogin.
	ProcessCallback(ctx context.Context, sessionID string, req *http.Request) (*Authenticated, error)

	// IsManagingMemberships reports whether group memberships of
	// authenticated users are managed by this connector.  When false, the
	// external membership system retains authority.
	IsManagingMemberships() bool
}

// Authenticated is the normalized identity produced by a successful
// connector login.  Ownership passes to the authentication subsystem; the
// connector holds no further reference to it.
type Authenticated struct {
	// UserName is the derived login name.  Never empty.
	UserName string

	// Email is the verified email returned by the provider.  Never empty.
	Email string

	// FullName is the display name, or empty if the provider did not return
	// one.
	FullName string

	// GroupNames lists the groups the provider asserts for the user.  A nil
	// slice means membership management is not delegated to the connector,
	// which is distinct from an empty (but non-nil) slice.
	GroupNames []string

	// ConnectorName names the connector that produced this identity.
	ConnectorName string
}
