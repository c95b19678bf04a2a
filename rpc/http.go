package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"restakechain/crypto"
	"restakechain/native/common"
	"restakechain/native/guardrail"
	"restakechain/native/registry"
	"restakechain/native/vault"
	"restakechain/native/vaultrouter"
)

const (
	codeParse          = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeRateLimited    = -32010
	codeUnauthorized   = -32011
	codeNotFound       = -32012
)

// RPCRequest is the JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// RPCError is the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCResponse is the JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type handlerFunc func(params json.RawMessage) (interface{}, *RPCError)

// ServerConfig carries the knobs the RPC server needs from node config.
type ServerConfig struct {
	AuthSecret string
	RateLimit  float64
	RateBurst  int
	// AdminAddress is the account privileged methods act as.
	AdminAddress [20]byte
}

// Server exposes the module queries and the privileged admin surface over
// JSON-RPC 2.0.
type Server struct {
	log     *slog.Logger
	limiter *rate.Limiter

	authSecret []byte
	admin      [20]byte

	vaults     *vault.Engine
	registry   *registry.Engine
	router     *vaultrouter.Engine
	guardrails *guardrail.Engine
	pauses     *common.Switchboard

	handlers   map[string]handlerFunc
	privileged map[string]bool
}

// NewServer wires the engines into the RPC dispatch table.
func NewServer(log *slog.Logger, cfg ServerConfig, vaults *vault.Engine, reg *registry.Engine, router *vaultrouter.Engine, guardrails *guardrail.Engine, pauses *common.Switchboard) *Server {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 50
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = int(limit) * 2
	}
	s := &Server{
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		authSecret: []byte(cfg.AuthSecret),
		admin:      cfg.AdminAddress,
		vaults:     vaults,
		registry:   reg,
		router:     router,
		guardrails: guardrails,
		pauses:     pauses,
	}
	s.handlers = map[string]handlerFunc{
		"vault_info":                     s.handleVaultInfo,
		"vault_sharesOf":                 s.handleVaultSharesOf,
		"vault_queuedWithdrawal":         s.handleVaultQueued,
		"registry_status":                s.handleRegistryStatus,
		"registry_slashingParameters":    s.handleRegistrySlashingParameters,
		"registry_isOptedIn":             s.handleRegistryIsOptedIn,
		"router_listVaults":              s.handleRouterListVaults,
		"router_operatorVaults":          s.handleRouterOperatorVaults,
		"router_withdrawalLockPeriod":    s.handleRouterLockPeriod,
		"router_slashingRequest":         s.handleRouterSlashingRequest,
		"guardrail_proposal":             s.handleGuardrailProposal,
		"router_setVault":                s.handleRouterSetVault,
		"router_setWithdrawalLockPeriod": s.handleRouterSetLockPeriod,
		"pauser_pause":                   s.handlePauserPause,
		"pauser_resume":                  s.handlePauserResume,
	}
	s.privileged = map[string]bool{
		"router_setVault":                true,
		"router_setWithdrawalLockPeriod": true,
		"pauser_pause":                   true,
		"pauser_resume":                  true,
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	if r.Method != http.MethodPost {
		writeError(w, nil, codeInvalidRequest, "POST required")
		return
	}
	if !s.limiter.Allow() {
		writeError(w, nil, codeRateLimited, "rate limit exceeded")
		return
	}
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, codeParse, "malformed request")
		return
	}
	handler, ok := s.handlers[req.Method]
	if !ok {
		writeError(w, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
		return
	}
	if s.privileged[req.Method] {
		if rpcErr := s.authorize(r); rpcErr != nil {
			s.log.Warn("rpc privileged call rejected",
				"request_id", requestID, "method", req.Method, "code", rpcErr.Code)
			writeError(w, req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
	}
	start := time.Now()
	result, rpcErr := handler(req.Params)
	elapsed := time.Since(start)
	if rpcErr != nil {
		s.log.Info("rpc call failed",
			"request_id", requestID, "method", req.Method, "code", rpcErr.Code, "elapsed", elapsed)
		writeError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	s.log.Debug("rpc call served",
		"request_id", requestID, "method", req.Method, "elapsed", elapsed)
	writeResult(w, req.ID, result)
}

func (s *Server) authorize(r *http.Request) *RPCError {
	if len(s.authSecret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "privileged methods disabled"}
	}
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return &RPCError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.authSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

func decodeParams(raw json.RawMessage, v interface{}) *RPCError {
	if len(raw) == 0 {
		return &RPCError{Code: codeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "malformed params"}
	}
	return nil
}

func parseAddr(raw string) ([20]byte, *RPCError) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid address %q", raw)}
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func mapEngineError(err error) *RPCError {
	switch {
	case errors.Is(err, vault.ErrNotFound),
		errors.Is(err, vaultrouter.ErrRequestNotFound),
		errors.Is(err, guardrail.ErrProposalNotFound):
		return &RPCError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, vault.ErrUnauthorized),
		errors.Is(err, vaultrouter.ErrUnauthorized):
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	default:
		return &RPCError{Code: codeInternal, Message: err.Error()}
	}
}
