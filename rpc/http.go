package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ultrasoundlabs/untron-v1/native/untron"
	"github.com/ultrasoundlabs/untron-v1/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Server exposes the escrow engine over JSON-RPC 2.0. Write methods require a
// bearer token; reads are open. Each client address is throttled with a token
// bucket.
type Server struct {
	engine *untron.Engine
	broker *EventBroker
	logger *slog.Logger

	authToken string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// ServerConfig carries the RPC server settings.
type ServerConfig struct {
	AuthToken      string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer wires the RPC surface to the engine. A nil logger falls back to
// the process default.
func NewServer(engine *untron.Engine, broker *EventBroker, logger *slog.Logger, cfg ServerConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	rps := rate.Limit(cfg.RateLimitRPS)
	if rps <= 0 {
		rps = 50
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 100
	}
	return &Server{
		engine:    engine,
		broker:    broker,
		logger:    logger,
		authToken: strings.TrimSpace(cfg.AuthToken),
		limiters:  make(map[string]*rate.Limiter),
		rps:       rps,
		burst:     burst,
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

// ServeHTTP is the main request handler; it parses the envelope, applies
// throttling and authentication, and routes to the method handlers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	method := ""
	defer func() {
		observability.ModuleMetrics().Observe(method, status, time.Since(start))
	}()

	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allow(clientID(r)) {
		status = http.StatusTooManyRequests
		observability.ModuleMetrics().RecordThrottle("rate_limit")
		writeError(w, status, nil, codeRateLimited, "too many requests", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status = http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		status = http.StatusBadRequest
		writeError(w, status, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		status = http.StatusBadRequest
		writeError(w, status, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		status = http.StatusBadRequest
		writeError(w, status, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		status = http.StatusBadRequest
		writeError(w, status, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	method = req.Method

	handler, writes, ok := s.route(req.Method)
	if !ok {
		status = http.StatusNotFound
		writeError(w, status, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	if writes {
		if authErr := s.requireAuth(r); authErr != nil {
			status = http.StatusUnauthorized
			s.logger.Warn("rpc auth rejected", "method", req.Method, "reason", authErr.Message)
			writeError(w, status, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	status = handler(w, req)
}

type handlerFunc func(w http.ResponseWriter, req *RPCRequest) int

func (s *Server) route(method string) (handlerFunc, bool, bool) {
	switch method {
	case "untron_setProvider":
		return s.handleSetProvider, true, true
	case "untron_createOrder":
		return s.handleCreateOrder, true, true
	case "untron_changeOrder":
		return s.handleChangeOrder, true, true
	case "untron_stopOrder":
		return s.handleStopOrder, true, true
	case "untron_fulfill":
		return s.handleFulfill, true, true
	case "untron_closeOrders":
		return s.handleCloseOrders, true, true
	case "untron_setCoreVariables":
		return s.handleSetCoreVariables, true, true
	case "untron_setFeesVariables":
		return s.handleSetFeesVariables, true, true
	case "untron_setZKVariables":
		return s.handleSetZKVariables, true, true
	case "untron_mint":
		return s.handleMint, true, true
	case "untron_calculateFulfillerTotal":
		return s.handleCalculateFulfillerTotal, false, true
	case "untron_getProvider":
		return s.handleGetProvider, false, true
	case "untron_getOrder":
		return s.handleGetOrder, false, true
	case "untron_getReceiver":
		return s.handleGetReceiver, false, true
	case "untron_getChainState":
		return s.handleGetChainState, false, true
	case "untron_getVariables":
		return s.handleGetVariables, false, true
	case "untron_getBalance":
		return s.handleGetBalance, false, true
	}
	return nil, false, false
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allow(id string) bool {
	s.mu.Lock()
	limiter, ok := s.limiters[id]
	if !ok {
		limiter = rate.NewLimiter(s.rps, s.burst)
		s.limiters[id] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if comma := strings.IndexByte(ip, ','); comma > 0 {
			ip = ip[:comma]
		}
		if parsed := net.ParseIP(strings.TrimSpace(ip)); parsed != nil {
			return parsed.String()
		}
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
