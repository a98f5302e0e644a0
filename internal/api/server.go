// Package api implements the Control API (C8): a loopback JSON-RPC-style
// request/response surface over HTTP, authenticated with HTTP Basic,
// exposing a fixed method set that maps onto the Daemon (C7).
//
// Grounded on the teacher's internal/api/server.go chi router/middleware
// shape, with the build-CRUD/SSE surface replaced by a single JSON-RPC
// dispatch endpoint per spec §4.8/§6.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gallofeliz/hen-backup/internal/config"
	"github.com/gallofeliz/hen-backup/internal/daemon"
	hberrors "github.com/gallofeliz/hen-backup/internal/errors"
	"github.com/gallofeliz/hen-backup/internal/metrics"
	"github.com/gallofeliz/hen-backup/internal/task"
	"github.com/gallofeliz/hen-backup/internal/tracenode"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope. Result and Error are
// mutually exclusive.
type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

// methodFunc handles one JSON-RPC method against the daemon, decoding its
// own params from raw.
type methodFunc func(ctx context.Context, d *daemon.Daemon, raw json.RawMessage) (any, error)

// methods is the fixed allowlist from spec §4.8. Dynamic dispatch is
// modeled as this explicit map rather than reflection over method names.
var methods = map[string]methodFunc{
	"get_config_summary": func(ctx context.Context, d *daemon.Daemon, raw json.RawMessage) (any, error) {
		return d.GetConfigSummary(), nil
	},
	"list_snapshots": func(ctx context.Context, d *daemon.Daemon, raw json.RawMessage) (any, error) {
		var p struct {
			Repository string `json:"repository"`
			Backup     string `json:"backup"`
			Sort       string `json:"sort"`
			Reverse    bool   `json:"reverse"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return d.ListSnapshots(ctx, p.Repository, p.Backup, p.Sort, p.Reverse)
	},
	"explain_snapshot": func(ctx context.Context, d *daemon.Daemon, raw json.RawMessage) (any, error) {
		var p struct {
			Repository string `json:"repository"`
			Snapshot   string `json:"snapshot"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return d.ExplainSnapshot(ctx, p.Repository, p.Snapshot)
	},
	"backup": func(ctx context.Context, d *daemon.Daemon, raw json.RawMessage) (any, error) {
		var p struct {
			Backup     string `json:"backup"`
			Priority   string `json:"priority"`
			WaitResult bool   `json:"waitResult"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return d.Backup(p.Backup, priorityOrDefault(p.Priority, task.PriorityNormal), p.WaitResult, tracenode.Root("api-backup"))
	},
	"restore_snapshot": func(ctx context.Context, d *daemon.Daemon, raw json.RawMessage) (any, error) {
		var p struct {
			Repository string `json:"repository"`
			Snapshot   string `json:"snapshot"`
			Target     string `json:"target"`
			Priority   string `json:"priority"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		if p.Target == "" {
			p.Target = "/"
		}
		d.RestoreSnapshot(p.Repository, p.Snapshot, p.Target, priorityOrDefault(p.Priority, task.PriorityNormal))
		return nil, nil
	},
	"check_repository": func(ctx context.Context, d *daemon.Daemon, raw json.RawMessage) (any, error) {
		var p struct {
			Repository string `json:"repository"`
			Priority   string `json:"priority"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		d.CheckRepository(p.Repository, priorityOrDefault(p.Priority, ""))
		return nil, nil
	},
	"prune": func(ctx context.Context, d *daemon.Daemon, raw json.RawMessage) (any, error) {
		var p struct {
			Backup     string `json:"backup"`
			Priority   string `json:"priority"`
			WaitResult bool   `json:"waitResult"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return d.Prune(p.Backup, priorityOrDefault(p.Priority, task.PriorityNormal), p.WaitResult)
	},
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return hberrors.Wrap(err, hberrors.CategoryProtocol, "invalid method params").Build()
	}
	return nil
}

func priorityOrDefault(p string, def task.Priority) task.Priority {
	if p == "" {
		return def
	}
	return task.Priority(p)
}

// Server is the Control API's HTTP listener.
type Server struct {
	addr           string
	router         *chi.Mux
	server         *http.Server
	daemon         *daemon.Daemon
	auth           *config.Basic
	errs           *hberrors.HTTPAdapter
	rec            metrics.Recorder
	metricsHandler http.Handler
}

// NewServer builds a Control API server bound to addr, dispatching to d.
// auth is nil when no credentials are configured, in which case requests
// are not challenged (spec §3: API credentials are optional). rec may be
// nil, in which case API request counts are simply discarded. metricsHandler
// serves /metrics; it must be built against the same registry rec (when a
// *metrics.PrometheusRecorder) was registered with — see metrics.Handler —
// or nil to fall back to the default Prometheus registry's handler.
func NewServer(addr string, d *daemon.Daemon, auth *config.Basic, rec metrics.Recorder, metricsHandler http.Handler) *Server {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if metricsHandler == nil {
		metricsHandler = metrics.Handler(nil)
	}
	s := &Server{
		addr:           addr,
		router:         chi.NewRouter(),
		daemon:         d,
		auth:           auth,
		errs:           hberrors.NewHTTPAdapter(nil),
		rec:            rec,
		metricsHandler: metricsHandler,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(s.cors)
	s.router.Use(s.basicAuth)

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metricsHandler)
	s.router.HandleFunc("/", s.handleRPC)
}

// cors answers CORS preflight requests permissively and tags every
// response with permissive headers, per spec §4.8.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// invalidAuthBody is the exact JSON-RPC error envelope spec §4.8/§6
// requires on an authentication failure.
const invalidAuthBody = `{"error":{"code":"invalid-auth","message":"Invalid Auth"},"id":null,"jsonrpc":"2.0"}`

// basicAuth enforces HTTP Basic auth against the configured credentials.
// When no credentials are configured, every request passes through
// unchallenged. /health and /metrics are exempt so liveness and scraping
// need no credentials.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || r.Method == http.MethodOptions || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !credentialsMatch(user, s.auth.Username) || !credentialsMatch(pass, s.auth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="henbackup"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(invalidAuthBody))
			s.rec.IncAPIRequest("", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func credentialsMatch(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// handleRPC implements spec §6's transport contract: POST / with a
// JSON-RPC 2.0 body; any other verb (besides the CORS-handled OPTIONS)
// fails with 500.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported on this endpoint", http.StatusInternalServerError)
		s.rec.IncAPIRequest("", http.StatusInternalServerError)
		return
	}

	// A malformed body is a parse failure, not a dispatchable protocol
	// error: spec §7 calls for a bare 500 with the exception string,
	// distinct from the JSON-RPC error envelope used once a request has
	// been parsed.
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		s.rec.IncAPIRequest("", http.StatusInternalServerError)
		return
	}

	handler, ok := methods[req.Method]
	if !ok {
		s.writeError(w, req.ID, req.Method, hberrors.New(hberrors.CategoryProtocol, "unknown method: "+req.Method).Build())
		return
	}

	result, err := handler(r.Context(), s.daemon, req.Params)
	if err != nil {
		s.writeError(w, req.ID, req.Method, err)
		return
	}

	status := http.StatusOK
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Result: result, ID: req.ID})
	s.rec.IncAPIRequest(req.Method, status)
}

func (s *Server) writeError(w http.ResponseWriter, id any, method string, err error) {
	status := s.errs.StatusCodeFor(err)
	code := string(hberrors.GetCategory(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: "2.0",
		Error:   &rpcError{Code: code, Message: err.Error()},
		ID:      id,
	})
	s.rec.IncAPIRequest(method, status)
}

// Start runs the server's accept loop; it blocks until Close is called,
// returning http.ErrServerClosed.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Close gracefully shuts down the server, satisfying the Daemon's
// apiCloser interface.
func (s *Server) Close(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
