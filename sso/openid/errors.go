package openid

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscovery means the provider's discovery document could not be
	// fetched or was missing a required endpoint.
	ErrDiscovery = errors.New("unable to discover provider metadata")

	// ErrUnsolicitedResponse means the callback did not match an in-flight
	// login attempt: there was no stored attempt for the browser session, or
	// the anti-replay state did not match.
	ErrUnsolicitedResponse = errors.New("unsolicited authentication response")

	// ErrTokenExchange means the token endpoint rejected the authorization
	// code exchange.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrMissingIDToken means the token response carried no id_token.
	ErrMissingIDToken = errors.New("id_token is missing from token response")

	// ErrIssuerMismatch means the id_token's issuer differs from the
	// discovered provider metadata issuer.
	ErrIssuerMismatch = errors.New("inconsistent issuer in provider metadata and id_token")

	// ErrInvalidIssueTime means the id_token's issue time is too far in the
	// future.
	ErrInvalidIssueTime = errors.New("invalid issue time of id_token")

	// ErrTokenExpired means the id_token's expiration time has passed.
	ErrTokenExpired = errors.New("id_token was expired")

	// ErrUserInfo means the userinfo endpoint returned a non-success
	// response.
	ErrUserInfo = errors.New("userinfo request failed")

	// ErrSubjectMismatch means the userinfo sub claim differs from the
	// id_token's subject.
	ErrSubjectMismatch = errors.New("inconsistent sub in id_token and userinfo")

	// ErrMissingEmailClaim means the provider returned no usable email claim.
	ErrMissingEmailClaim = errors.New("no email claim returned")
)

// ProviderError carries the error object a provider returned in an
// authentication, token, or userinfo response.  It wraps the sentinel error
// of the flow step it occurred in, so callers can branch on the step with
// errors.Is while still surfacing the provider's own description.
type ProviderError struct {
	// Code is the provider's error code, for example "access_denied".
	Code string

	// Description is the provider's human readable error description, when
	// one was returned.
	Description string

	// step is the sentinel error of the flow step the provider error
	// occurred in.
	step error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Description != "" && e.Code != "":
		return fmt.Sprintf("provider error %q: %s", e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("provider error %q", e.Code)
	default:
		return "provider returned an error response"
	}
}

func (e *ProviderError) Unwrap() error { return e.step }
