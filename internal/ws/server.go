package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sound-priority/daemon/internal/config"
	"github.com/sound-priority/daemon/internal/frontend"
	"github.com/sound-priority/daemon/internal/logging"
	"github.com/sound-priority/daemon/internal/session"
)

// Controller is the command surface of the ducking daemon.
type Controller interface {
	Start()
	Stop()
	Update(config.Ducking)
}

// Server is the local control surface: it shows the daemon state, edits the
// ducking configuration and forwards resume/suspend. Configuration changes
// are saved to disk before they are sent to the daemon.
type Server struct {
	cfgMu      sync.Mutex
	config     *config.Config
	configPath string

	daemon         Controller
	store          *session.Store
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	log            *slog.Logger
}

func NewServer(cfg *config.Config, configPath string, daemon Controller, store *session.Store, broadcaster *Broadcaster, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		config:         cfg,
		configPath:     configPath,
		daemon:         daemon,
		store:          store,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Server.AuthToken,
		log:            log.With("component", "server"),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.sameOrigin(s.handlePutConfig))
	mux.HandleFunc("POST /api/apps/{name}/{list}", s.sameOrigin(s.handleToggleApp))
	mux.HandleFunc("POST /api/daemon/{action}", s.sameOrigin(s.handleDaemon))
	mux.Handle("GET /metrics", promhttp.Handler())

	page := frontend.Handler()
	mux.Handle("GET /{$}", page)
	mux.Handle("GET /assets/", page)
}

// Handler returns the full route set wrapped in the security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// sameOrigin rejects state-changing requests sent by pages the origin check
// does not trust. Browsers send Origin on every cross-site POST and PUT, so
// Sec-Fetch-Site only decides when Origin is absent. Non-browser clients send
// neither and pass.
func (s *Server) sameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		allowed := s.checkOrigin(r)
		if r.Header.Get("Origin") == "" && r.Header.Get("Sec-Fetch-Site") == "cross-site" {
			allowed = false
		}
		if !allowed {
			s.log.Warn("request.cross_origin_rejected",
				"method", r.Method, "path", r.URL.Path,
				"origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws.upgrade_failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.log.Warn("ws.rejected", "remote", r.RemoteAddr, "err", err)
		_ = conn.WriteJSON(WSMessage{Type: MsgError, Payload: ErrorPayload{Message: err.Error()}})
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}
	s.log.Info("ws.connected", "remote", r.RemoteAddr, "client", c.id)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.log.Info("ws.disconnected", "remote", r.RemoteAddr, "client", c.id)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.broadcaster.FilterSnapshot(s.store.Latest()))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.broadcaster.FilterSessions(s.store.GetAll()))
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.cfgMu.Lock()
	d := s.config.Ducking.Clone()
	s.cfgMu.Unlock()
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var d config.Ducking
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		http.Error(w, fmt.Sprintf("invalid config: %v", err), http.StatusBadRequest)
		return
	}
	if d.Targets == nil {
		d.Targets = []string{}
	}
	if d.Exclude == nil {
		d.Exclude = []string{}
	}
	if err := d.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.applyDucking(func(config.Ducking) config.Ducking { return d }); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleToggleApp handles /api/apps/{name}/target and /api/apps/{name}/exclude.
// Each call adds the name to the list or removes it if already present.
func (s *Server) handleToggleApp(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	name := r.PathValue("name")
	if name == "" {
		http.Error(w, "invalid app name", http.StatusBadRequest)
		return
	}

	var edit func(config.Ducking) config.Ducking
	switch r.PathValue("list") {
	case "target":
		edit = func(d config.Ducking) config.Ducking { return d.ToggleTarget(name) }
	case "exclude":
		edit = func(d config.Ducking) config.Ducking { return d.ToggleExclude(name) }
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if err := s.applyDucking(edit); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.cfgMu.Lock()
	d := s.config.Ducking.Clone()
	s.cfgMu.Unlock()
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDaemon(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.PathValue("action") {
	case "resume":
		s.daemon.Start()
	case "suspend":
		s.daemon.Stop()
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// applyDucking edits the ducking section, saves the file and only then
// hands the new value to the daemon. A failed save leaves everything as it
// was.
func (s *Server) applyDucking(edit func(config.Ducking) config.Ducking) error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	prev := s.config.Ducking
	next := edit(prev.Clone())
	s.config.Ducking = next

	if s.configPath != "" {
		if err := s.config.Save(s.configPath); err != nil {
			s.config.Ducking = prev
			s.log.Error("config.save_failed", "path", s.configPath, "err", err)
			return fmt.Errorf("save config: %w", err)
		}
	}

	s.daemon.Update(next)
	s.broadcaster.QueueConfig(next)
	s.log.Info("config.updated", "targets", next.Targets, "exclude", next.Exclude)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Sound-Priority-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

// ListenAndServe serves h until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, host string, port int, h http.Handler, log *slog.Logger) error {
	if log == nil {
		log = logging.Discard()
	}
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
