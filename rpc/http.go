package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"peershield/observability/metrics"
)

const (
	jsonRPCVersion      = "2.0"
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	requestIDHeader     = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

// ServerConfig configures the JSON-RPC server.
type ServerConfig struct {
	JWTSecret          string
	JWTIssuer          string
	ClockSkew          time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
	MaxBodyBytes       int64
	Logger             *slog.Logger
	Metrics            *metrics.CoverageMetrics
	// TrustProxyHeaders keys clients by X-Forwarded-For. Enable it only
	// when the server sits behind a proxy that overwrites the header.
	TrustProxyHeaders bool
}

// Server exposes the coverage application over JSON-RPC.
type Server struct {
	app        Application
	outbox     Outbox
	auth       *authenticator
	limiter    *rateLimiter
	logger     *slog.Logger
	metrics    *metrics.CoverageMetrics
	maxBody    int64
	trustProxy bool
	methods    map[string]handlerFunc
}

// NewServer builds a server for app. outbox may be nil, in which case the
// outbox methods report that the outbox is unavailable.
func NewServer(app Application, outbox Outbox, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	s := &Server{
		app:        app,
		outbox:     outbox,
		auth:       newAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.ClockSkew),
		limiter:    newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.TrustProxyHeaders),
		logger:     logger,
		metrics:    cfg.Metrics,
		maxBody:    maxBody,
		trustProxy: cfg.TrustProxyHeaders,
	}
	s.methods = s.routes()
	return s
}

// Handler returns the HTTP surface: JSON-RPC on POST /, liveness on
// /healthz and prometheus metrics on /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.middleware).Post("/", s.handle)
	return otelhttp.NewHandler(r, "peershield.rpc")
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		"coverage_create":          s.authenticated(s.handleCreate),
		"coverage_topUp":           s.authenticated(s.handleTopUp),
		"coverage_setRecipient":    s.authenticated(s.handleSetRecipient),
		"coverage_approve":         s.authenticated(s.handleApprove),
		"coverage_refund":          s.authenticated(s.handleRefund),
		"coverage_claim":           s.authenticated(s.handleClaim),
		"coverage_provideCoverage": s.authenticated(s.handleProvideCoverage),
		"coverage_receive":         s.authenticated(s.handleReceive),
		"coverage_list":            s.handleList,
		"coverage_details":         s.handleDetails,
		"coverage_listClaims":      s.handleListClaims,
		"coverage_pool":            s.handlePool,
		"node_info":                s.handleNodeInfo,
		"outbox_pending":           s.scoped(scopeOutbox, s.handleOutboxPending),
		"outbox_ack":               s.scoped(scopeOutbox, s.handleOutboxAck),
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.maxBody)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	s.logger.Debug("rpc request",
		"method", req.Method,
		"request_id", r.Header.Get(requestIDHeader),
		"remote", clientSource(r, s.trustProxy))
	handler(w, r, req)
}

// clientSource identifies the caller's network address. X-Forwarded-For is
// client controlled, so it is only honoured when trustProxy is set.
func clientSource(r *http.Request, trustProxy bool) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); trustProxy && forwarded != "" {
		candidate, _, _ := strings.Cut(forwarded, ",")
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decodeParam unmarshals the single object parameter of a request.
func decodeParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	decoder := json.NewDecoder(bytes.NewReader(req.Params[0]))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}
