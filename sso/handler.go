package sso

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
)

const (
	// MountPath is the path prefix all sso routes are mounted under.
	MountPath = "~sso"

	// StageInitiate names the login-initiation stage of the sso flow.
	StageInitiate = "initiate"

	// StageCallback names the provider-callback stage of the sso flow.
	StageCallback = "callback"

	// SessionCookieName is the cookie carrying the opaque browser-session id
	// that correlates a login initiation with its callback.
	SessionCookieName = "onedev_sso_session"
)

// CallbackURL composes the callback URL a provider must be configured to
// redirect back to: <serverURL>/<MountPath>/<StageCallback>/<connectorName>.
func CallbackURL(serverURL, connectorName string) string {
	return fmt.Sprintf("%s/%s/%s/%s", serverURL, MountPath, StageCallback, connectorName)
}

// IdentityHandler receives the identity of every successful login.  It is
// the hand-off point to the authentication subsystem, which owns the
// identity from then on.
type IdentityHandler func(w http.ResponseWriter, req *http.Request, authenticated *Authenticated)

// Handler serves the two browser-facing stages of a connector login:
//
//	GET /~sso/initiate/{connector}  redirects the browser to the provider
//	GET /~sso/callback/{connector}  consumes the provider's response
//
// Each stage runs entirely within its own request; the two are connected
// only through the browser and the connector's per-session login state.
type Handler struct {
	registry *Registry
	onLogin  IdentityHandler
	logger   hclog.Logger
}

// NewHandler creates a Handler for the given registry.  onLogin is invoked
// once per successful callback with the normalized identity.
func NewHandler(registry *Registry, onLogin IdentityHandler, logger hclog.Logger) (*Handler, error) {
	const op = "sso.NewHandler"
	if registry == nil {
		return nil, fmt.Errorf("%s: nil registry", op)
	}
	if onLogin == nil {
		return nil, fmt.Errorf("%s: nil identity handler", op)
	}
	if logger == nil {
		logger = hclog.Default()
	}
	return &Handler{
		registry: registry,
		onLogin:  onLogin,
		logger:   logger.Named("sso"),
	}, nil
}

// Routes returns the router to be mounted at "/" + MountPath.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/"+StageInitiate+"/{connector}", h.initiate)
	r.Get("/"+StageCallback+"/{connector}", h.callback)
	return r
}

func (h *Handler) initiate(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "connector")
	connector, err := h.registry.Get(name)
	if err != nil {
		http.NotFound(w, req)
		return
	}

	sessionID := h.sessionID(w, req)
	redirectURL, err := connector.InitiateLogin(req.Context(), sessionID)
	if err != nil {
		h.logger.Error("unable to initiate sso login", "connector", name, "err", err)
		http.Error(w, "Unable to initiate login: "+err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, req, redirectURL, http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "connector")
	connector, err := h.registry.Get(name)
	if err != nil {
		http.NotFound(w, req)
		return
	}

	cookie, err := req.Cookie(SessionCookieName)
	if err != nil {
		h.logger.Warn("sso callback without a browser session", "connector", name)
		http.Error(w, ErrNoSession.Error(), http.StatusUnauthorized)
		return
	}

	authenticated, err := connector.ProcessCallback(req.Context(), cookie.Value, req)
	if err != nil {
		h.logger.Warn("sso login failed", "connector", name, "err", err)
		http.Error(w, "Login failed: "+err.Error(), http.StatusUnauthorized)
		return
	}
	h.logger.Info("sso login succeeded", "connector", name, "user", authenticated.UserName)
	h.onLogin(w, req, authenticated)
}

// sessionID returns the browser-session id from the request's cookie,
// setting a new one when the browser has none yet.
func (h *Handler) sessionID(w http.ResponseWriter, req *http.Request) string {
	if cookie, err := req.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := newSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func newSessionID() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("unable to generate session id: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
