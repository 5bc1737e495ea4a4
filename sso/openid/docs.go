/*
openid implements the OpenID Connect authorization code flow as an sso
connector.

A login runs as two separate request/response cycles connected only through
the external browser and the per-session login attempt state:

	InitiateLogin:   discover endpoints -> store state + metadata against
	                 the browser session -> redirect to the authorization
	                 endpoint
	ProcessCallback: consume the stored attempt -> validate the anti-replay
	                 state -> exchange the authorization code -> validate
	                 the id_token claims -> fetch userinfo -> assemble the
	                 authenticated identity

Every failure is terminal and surfaced synchronously as one of the package's
named errors (or a *ProviderError carrying the provider's own error object);
nothing is retried.  The only remedy is starting a fresh login.

The id_token's signature is deliberately not verified: the token is obtained
over a direct TLS channel to the token endpoint, which is why the issuer URL
should use the https scheme.
*/
package openid
