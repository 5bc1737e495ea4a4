/*
sso provides the single-sign-on connector abstraction: the Connector
capability interface, the normalized Authenticated identity it produces, a
Registry of configured connectors, and the browser-facing Handler that mounts
the initiate and callback stages of a connector login under a common path
prefix.

Concrete connectors live in subpackages; see sso/openid for the OpenID
Connect authorization code connector.
*/
package sso
