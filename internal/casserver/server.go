// Package casserver is a small stand-in for an Apereo CAS deployment: the
// login form, the U2F multi-factor registration and authentication pages,
// and the actuator endpoints the casprobe scenarios call.
package casserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raysh454/casprobe/internal/logging"
)

// U2FMethod is the authn_method value that selects the U2F provider.
const U2FMethod = "mfa-u2f"

var errNoCeremony = errors.New("no pending U2F ceremony")

// Server serves the CAS routes.
type Server struct {
	cfg      Config
	router   chi.Router
	logger   logging.Logger
	users    *UserStore
	devices  *DeviceRegistry
	sessions *sessionStore
	metrics  *metrics
	parties  sync.Map // origin -> *webauthn.WebAuthn
	mu       sync.Mutex
	http     *http.Server
	closed   bool
	stopOnce sync.Once
}

// NewServer builds a Server. Users come from cfg.HtpasswdFile when set,
// cfg.Users otherwise.
func NewServer(cfg Config, logger logging.Logger) (*Server, error) {
	def := DefaultConfig()
	if cfg.ContextPath == "" {
		cfg.ContextPath = def.ContextPath
	}
	cfg.ContextPath = "/" + strings.Trim(cfg.ContextPath, "/")
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = def.RPDisplayName
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("casserver")
	}

	var (
		users *UserStore
		err   error
	)
	if cfg.HtpasswdFile != "" {
		users, err = LoadUserStore(cfg.HtpasswdFile)
	} else {
		users, err = NewUserStore(cfg.Users)
	}
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		logger:   logger,
		users:    users,
		devices:  NewDeviceRegistry(),
		sessions: newSessionStore(cfg.SessionTTL),
		metrics:  newMetrics(),
	}
	s.sessions.start()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Route(s.cfg.ContextPath, func(r chi.Router) {
		r.Get("/login", s.handleLoginForm)
		r.Post("/login", s.handleLogin)
		r.Get("/logout", s.handleLogout)

		r.Post("/u2f/register", s.handleU2FRegister)
		r.Post("/u2f/authenticate", s.handleU2FAuthenticate)

		r.Post("/actuator/refresh", s.handleRefresh)
		r.Get("/actuator/health", s.handleHealth)
		r.Get("/actuator/u2fDevices", s.handleListDevices)
		r.Delete("/actuator/u2fDevices", s.handleResetDevices)
		r.Delete("/actuator/u2fDevices/{username}", s.handleRemoveDevices)
		r.Method(http.MethodGet, "/actuator/prometheus", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("http_request",
		logging.F("method", r.Method),
		logging.F("path", r.URL.Path),
	)
	s.router.ServeHTTP(w, r)
}

// Devices exposes the registered U2F devices.
func (s *Server) Devices() *DeviceRegistry {
	return s.devices
}

// ContextPath returns the normalized route prefix.
func (s *Server) ContextPath() string {
	return s.cfg.ContextPath
}

// HTTPServer creates an *http.Server ready to serve s.
func (s *Server) HTTPServer() (*http.Server, error) {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
	}
	if !s.cfg.TLS {
		return srv, nil
	}

	var (
		cert tls.Certificate
		err  error
	)
	if s.cfg.CertFile != "" || s.cfg.KeyFile != "" {
		cert, err = tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		cert, err = SelfSignedCertificate("localhost", "127.0.0.1", "::1")
	}
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return srv, nil
}

// ListenAndServe serves until Shutdown. http.ErrServerClosed is not reported.
func (s *Server) ListenAndServe() error {
	srv, err := s.HTTPServer()
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.http = srv
	s.mu.Unlock()

	scheme := "http"
	if s.cfg.TLS {
		scheme = "https"
	}
	s.logger.Info("cas server listening",
		logging.F("addr", s.cfg.Addr),
		logging.F("login", fmt.Sprintf("%s://localhost%s%s/login", scheme, portOf(s.cfg.Addr), s.cfg.ContextPath)),
	)

	if s.cfg.TLS {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener and the session janitors.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.Close()
	s.mu.Lock()
	s.closed = true
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Close stops background session expiry.
func (s *Server) Close() {
	s.stopOnce.Do(s.sessions.stop)
}

func (s *Server) loginURL() string {
	return s.cfg.ContextPath + "/login"
}

// --- handlers ---

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get("authn_method")
	if method == "" {
		if user, ok := s.currentUser(r); ok {
			render(w, http.StatusOK, "success", successPage{Username: user, Logout: s.cfg.ContextPath + "/logout"})
			return
		}
	}
	render(w, http.StatusOK, "login", loginPage{Action: r.URL.RequestURI(), Method: method})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		render(w, http.StatusBadRequest, "login", loginPage{Action: r.URL.RequestURI(), Error: "Malformed login request."})
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	method := r.PostFormValue("authn_method")
	if method == "" {
		method = r.URL.Query().Get("authn_method")
	}

	if !s.users.Authenticate(username, password) {
		s.metrics.logins.WithLabelValues("failure").Inc()
		s.logger.Warn("authentication failed", logging.F("username", username))
		render(w, http.StatusUnauthorized, "login", loginPage{Action: r.URL.RequestURI(), Method: method, Error: badCredentials})
		return
	}
	s.metrics.logins.WithLabelValues("success").Inc()

	switch method {
	case "":
		s.grantTicket(w, r, username)
		render(w, http.StatusOK, "success", successPage{Username: username, Logout: s.cfg.ContextPath + "/logout"})
	case U2FMethod:
		s.beginU2F(w, r, username)
	default:
		render(w, http.StatusBadRequest, "login", loginPage{
			Action: r.URL.RequestURI(),
			Method: method,
			Error:  fmt.Sprintf("Unsupported authentication method %q.", method),
		})
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: ticketCookie, Path: s.cfg.ContextPath, MaxAge: -1})
	http.Redirect(w, r, s.loginURL(), http.StatusFound)
}

func (s *Server) beginU2F(w http.ResponseWriter, r *http.Request, username string) {
	origin := requestOrigin(r)
	rp, err := s.relyingParty(origin)
	if err != nil {
		s.logger.Error("relying party setup failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "u2f unavailable")
		return
	}

	user := s.devices.user(username)
	page := devicePage{Next: s.loginURL()}
	c := ceremony{Username: username, Origin: origin}

	if len(user.creds) == 0 {
		creation, session, err := rp.BeginRegistration(user)
		if err != nil {
			s.logger.Error("begin registration failed", logging.Err(err))
			writeError(w, http.StatusInternalServerError, "u2f registration unavailable")
			return
		}
		c.Kind, c.Session = ceremonyRegister, *session
		page.Heading, page.Prompt = registerHeading, registerPrompt
		page.Options = creation.Response
		page.Endpoint = s.cfg.ContextPath + "/u2f/register"
	} else {
		assertion, session, err := rp.BeginLogin(user)
		if err != nil {
			s.logger.Error("begin login failed", logging.Err(err))
			writeError(w, http.StatusInternalServerError, "u2f authentication unavailable")
			return
		}
		c.Kind, c.Session = ceremonyAuthenticate, *session
		page.Heading, page.Prompt = authenticateHead, authenticatePrompt
		page.Options = assertion.Response
		page.Endpoint = s.cfg.ContextPath + "/u2f/authenticate"
	}
	page.Kind = string(c.Kind)

	http.SetCookie(w, &http.Cookie{
		Name:     ceremonyCookie,
		Value:    s.sessions.beginCeremony(c),
		Path:     s.cfg.ContextPath,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("u2f ceremony started", logging.F("username", username), logging.F("kind", page.Kind))
	render(w, http.StatusOK, "device", page)
}

func (s *Server) handleU2FRegister(w http.ResponseWriter, r *http.Request) {
	c, rp, err := s.pendingCeremony(r, ceremonyRegister)
	if err != nil {
		s.metrics.registrations.WithLabelValues("failure").Inc()
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var body protocol.CredentialCreationResponse
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.metrics.registrations.WithLabelValues("failure").Inc()
		writeError(w, http.StatusBadRequest, "malformed attestation")
		return
	}
	parsed, err := body.Parse()
	if err != nil {
		s.metrics.registrations.WithLabelValues("failure").Inc()
		writeError(w, http.StatusBadRequest, "malformed attestation")
		return
	}

	cred, err := rp.CreateCredential(s.devices.user(c.Username), c.Session, parsed)
	if err != nil {
		s.metrics.registrations.WithLabelValues("failure").Inc()
		s.logger.Warn("u2f registration rejected", logging.F("username", c.Username), logging.Err(err))
		writeError(w, http.StatusBadRequest, "registration rejected")
		return
	}
	s.devices.add(c.Username, *cred)
	s.metrics.registrations.WithLabelValues("success").Inc()
	s.logger.Info("u2f device registered", logging.F("username", c.Username))

	s.grantTicket(w, r, c.Username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered", "username": c.Username})
}

func (s *Server) handleU2FAuthenticate(w http.ResponseWriter, r *http.Request) {
	c, rp, err := s.pendingCeremony(r, ceremonyAuthenticate)
	if err != nil {
		s.metrics.u2fLogins.WithLabelValues("failure").Inc()
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var body protocol.CredentialAssertionResponse
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.metrics.u2fLogins.WithLabelValues("failure").Inc()
		writeError(w, http.StatusBadRequest, "malformed assertion")
		return
	}
	parsed, err := body.Parse()
	if err != nil {
		s.metrics.u2fLogins.WithLabelValues("failure").Inc()
		writeError(w, http.StatusBadRequest, "malformed assertion")
		return
	}

	cred, err := rp.ValidateLogin(s.devices.user(c.Username), c.Session, parsed)
	if err != nil {
		s.metrics.u2fLogins.WithLabelValues("failure").Inc()
		s.logger.Warn("u2f authentication rejected", logging.F("username", c.Username), logging.Err(err))
		writeError(w, http.StatusUnauthorized, "authentication rejected")
		return
	}
	s.devices.update(c.Username, *cred)
	s.metrics.u2fLogins.WithLabelValues("success").Inc()

	s.grantTicket(w, r, c.Username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "authenticated", "username": c.Username})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.metrics.refreshes.Inc()
	s.logger.Info("configuration refreshed")
	// Nothing is reloaded, so no property keys changed.
	writeJSON(w, http.StatusOK, []string{})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.devices.Counts())
}

func (s *Server) handleResetDevices(w http.ResponseWriter, r *http.Request) {
	s.devices.Reset()
	s.logger.Info("all u2f devices removed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveDevices(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	n := s.devices.Remove(username)
	s.logger.Info("u2f devices removed", logging.F("username", username), logging.F("count", n))
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (s *Server) pendingCeremony(r *http.Request, kind ceremonyKind) (ceremony, *webauthn.WebAuthn, error) {
	cookie, err := r.Cookie(ceremonyCookie)
	if err != nil {
		return ceremony{}, nil, errNoCeremony
	}
	c, ok := s.sessions.takeCeremony(cookie.Value)
	if !ok || c.Kind != kind {
		return ceremony{}, nil, errNoCeremony
	}
	rp, err := s.relyingParty(c.Origin)
	if err != nil {
		return ceremony{}, nil, err
	}
	return c, rp, nil
}

func (s *Server) grantTicket(w http.ResponseWriter, r *http.Request, username string) {
	http.SetCookie(w, &http.Cookie{
		Name:     ticketCookie,
		Value:    s.sessions.issueTicket(username),
		Path:     s.cfg.ContextPath,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) currentUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(ticketCookie)
	if err != nil {
		return "", false
	}
	return s.sessions.ticketUser(cookie.Value)
}

// relyingParty returns the WebAuthn relying party for origin. Without
// configured origins every origin gets its own instance, with the RP ID
// falling back to the origin's host name.
func (s *Server) relyingParty(origin string) (*webauthn.WebAuthn, error) {
	if v, ok := s.parties.Load(origin); ok {
		return v.(*webauthn.WebAuthn), nil
	}

	origins := s.cfg.RPOrigins
	if len(origins) == 0 {
		origins = []string{origin}
	}
	rpID := s.cfg.RPID
	if rpID == "" {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("parse origin %q: %w", origin, err)
		}
		rpID = u.Hostname()
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPID:                  rpID,
		RPDisplayName:         s.cfg.RPDisplayName,
		RPOrigins:             origins,
		AttestationPreference: protocol.PreferNoAttestation,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.CrossPlatform,
			UserVerification:        protocol.VerificationDiscouraged,
			ResidentKey:             protocol.ResidentKeyRequirementDiscouraged,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("configure relying party: %w", err)
	}
	v, _ := s.parties.LoadOrStore(origin, wa)
	return v.(*webauthn.WebAuthn), nil
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func portOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
