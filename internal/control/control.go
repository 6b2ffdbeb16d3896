// Package control implements the local admin HTTP interface (spec.md
// §4.12, §6.4): a fixed set of daemon-control commands plus log ingestion,
// bound across loopback/private addresses with no auth and public/IPv6
// addresses gated by a startup-generated access token. Grounded on the
// teacher's pkg/control/api.go (method-keyed request dispatch, guarded by
// a mutex against the backing agent), generalized from a raw JSON-over-
// listener accept loop to net/http + github.com/gorilla/mux (matching
// §6.4's real HTTP endpoints: headers, multipart formdata, a named
// method per path) per youngkashew-hypersdk's mux usage.
package control

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cyfs-core/bdt-ndn/internal/cyfserr"
)

// Mode selects the process this control server is embedded in, which
// fixes its default bind port (spec.md §4.12 "Port: per-mode default ...
// or random for App mode").
type Mode int

const (
	ModeOodDaemon Mode = iota
	ModeOodRuntime
	ModeInstaller
	ModeApp
)

// DefaultPort returns m's fixed admin port, or 0 (bind to any free port)
// for App mode.
func (m Mode) DefaultPort() int {
	switch m {
	case ModeOodDaemon:
		return 13998
	case ModeOodRuntime:
		return 13999
	case ModeInstaller:
		return 14000
	default:
		return 0
	}
}

// tokenHeader carries the access token on authenticated requests (spec.md
// §6.4 "Authenticated endpoints require a header carrying the access
// token").
const tokenHeader = "Cyfs-Access-Token"

// logSessionHeader identifies the POST /logs multipart session (spec.md
// §6.4).
const logSessionHeader = "Cyfs-Log-Session"

// Command is a registered daemon-control handler (spec.md §4.12 "a fixed
// set of commands for the daemon").
type Command func(ctx context.Context, r *http.Request) (interface{}, error)

// LogSink receives ingested log bytes from POST /logs (spec.md §6.4), an
// external collaborator (the log subsystem, out of scope per spec.md §1)
// beyond this interface.
type LogSink interface {
	WriteLog(session string, data []byte) error
}

// genToken generates a ~12 character opaque token (spec.md §3 "Token is a
// short (~12 char) opaque string generated at startup").
func genToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", cyfserr.Wrap(cyfserr.IoError, err, "control: generating access token")
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)), nil
}

// Server is the local admin HTTP interface (spec.md §4.12).
type Server struct {
	mode         Mode
	token        string
	requireToken bool
	logger       *zap.SugaredLogger
	sink         LogSink

	mu       sync.RWMutex
	commands map[string]Command

	listenMu  sync.Mutex
	listeners []net.Listener
	servers   []*http.Server
}

// NewServer builds a Server for mode. When requireToken is true, a token is
// generated at startup and public/IPv6 binds require it; loopback/private
// binds never require it (spec.md §4.12 "Binding policy").
func NewServer(mode Mode, requireToken bool, sink LogSink, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		mode:         mode,
		requireToken: requireToken,
		logger:       logger,
		sink:         sink,
		commands:     make(map[string]Command),
	}
	if requireToken {
		tok, err := genToken()
		if err != nil {
			return nil, err
		}
		s.token = tok
	}
	return s, nil
}

// Token returns the generated access token, or "" if this server doesn't
// require one.
func (s *Server) Token() string { return s.token }

// RegisterCommand installs a named daemon-control command (spec.md §4.12).
func (s *Server) RegisterCommand(name string, cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[name] = cmd
}

// InvokeCommand runs a registered command directly, bypassing HTTP —
// usable by an in-process CLI or by tests that only want to exercise
// command wiring.
func (s *Server) InvokeCommand(ctx context.Context, name string, r *http.Request) (interface{}, error) {
	s.mu.RLock()
	cmd, ok := s.commands[name]
	s.mu.RUnlock()
	if !ok {
		return nil, cyfserr.New(cyfserr.NotFound, "control: unknown command "+name)
	}
	return cmd(ctx, r)
}

// classifyAddr reports whether addr (a bindable local IP) is loopback or
// RFC1918 private (no-auth bind) versus public/IPv6 (token-gated bind),
// per spec.md §4.12 "Binding policy".
func classifyAddr(ip net.IP) (noAuth bool) {
	if ip.IsLoopback() {
		return true
	}
	return ip.To4() != nil && ip.IsPrivate()
}

// bindSet lists this host's interface IP addresses as bind candidates;
// Listen decides per address, via classifyAddr, whether it needs the token
// (spec.md §4.12).
func bindSet() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, cyfserr.Wrap(cyfserr.IoError, err, "control: enumerating interface addresses")
	}
	var out []string
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		out = append(out, ipNet.IP.String())
	}
	return out, nil
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/logs", s.handleLogs).Methods(http.MethodPost)
	r.HandleFunc("/command/{name}", s.handleCommand).Methods(http.MethodPost)
	return r
}

// authMiddleware rejects requests lacking the correct token header; used
// only on listeners bound to public/IPv6 addresses (spec.md §4.12).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.Header.Get(tokenHeader) == s.token {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "invalid or missing access token", http.StatusForbidden)
	})
}

// Listen binds the control interface across loopback/private addresses
// (always, no auth) plus public/IPv6 addresses (only when requireToken,
// header-gated), per spec.md §4.12, and starts serving each in its own
// goroutine. The returned Handle's Close stops every accept loop (spec.md
// §5 "Abortable tasks ... expose a handle whose drop stops the underlying
// accept loop").
func (s *Server) Listen(ctx context.Context) (*Handle, error) {
	addrs, err := bindSet()
	if err != nil {
		return nil, err
	}
	port := s.mode.DefaultPort()
	plain := s.router()
	guarded := s.router()
	guarded.Use(s.authMiddleware)

	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	var binds int
	for _, ip := range addrs {
		noAuth := classifyAddr(net.ParseIP(ip))
		if !noAuth && !s.requireToken {
			continue // public/IPv6 bind without a token configured: skip per policy.
		}
		host := net.JoinHostPort(ip, strconv.Itoa(port))
		ln, err := net.Listen("tcp", host)
		if err != nil {
			s.logger.Warnw("control: bind failed, skipping address", "addr", host, "err", err)
			continue
		}
		handler := plain
		if !noAuth {
			handler = guarded
		}
		srv := &http.Server{Handler: handler}
		s.listeners = append(s.listeners, ln)
		s.servers = append(s.servers, srv)
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				s.logger.Warnw("control: serve exited", "addr", ln.Addr().String(), "err", err)
			}
		}()
		binds++
	}
	if binds == 0 {
		return nil, cyfserr.New(cyfserr.IoError, "control: no address bound")
	}
	return &Handle{srv: s}, nil
}

// Handle stops every listener the Server started (spec.md §5).
type Handle struct {
	srv *Server
}

// Close stops every accept loop the Server has started, across all of its
// Listen calls.
func (h *Handle) Close() error {
	h.srv.listenMu.Lock()
	defer h.srv.listenMu.Unlock()
	for _, srv := range h.srv.servers {
		_ = srv.Close()
	}
	h.srv.servers = nil
	h.srv.listeners = nil
	return nil
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s.mu.RLock()
	cmd, ok := s.commands[name]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "unknown command", http.StatusNotFound)
		return
	}
	result, err := cmd(r.Context(), r)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warnw("control: encoding response", "err", err)
	}
}

// handleLogs implements POST /logs (spec.md §6.4 "log ingestion with
// multipart formdata, requires Content-Type, Content-Length,
// cyfs-log-session headers").
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	session := r.Header.Get(logSessionHeader)
	if session == "" {
		http.Error(w, "missing "+logSessionHeader+" header", http.StatusBadRequest)
		return
	}
	if r.ContentLength <= 0 {
		http.Error(w, "missing Content-Length", http.StatusBadRequest)
		return
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("log")
	if err != nil {
		http.Error(w, "missing log form field", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "reading log body", http.StatusBadRequest)
		return
	}
	if s.sink != nil {
		if err := s.sink.WriteLog(session, data); err != nil {
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
