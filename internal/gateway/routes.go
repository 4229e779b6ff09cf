package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/roster/internal/config"
)

// safeConfigPrefixes lists config path prefixes that can be read and
// written via RPC. All other paths are denied by default (allowlist).
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"sync",
	"logging",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle(MethodHealth, s.rpcHealth)
	s.Handle(MethodConfigGet, s.rpcConfigGet)
	s.Handle(MethodConfigSet, s.rpcConfigSet)
	s.Handle(MethodDocGet, s.rpcDocGet)
	s.Handle(MethodDocSet, s.rpcDocSet)
	s.Handle(MethodDocBatch, s.rpcDocBatch)
	s.Handle(MethodDocSubscribe, s.rpcDocSubscribe)
	s.Handle(MethodCollectionSubscribe, s.rpcCollectionSubscribe)
	s.Handle(MethodSubscriptionCancel, s.rpcSubscriptionCancel)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	var uptime int64
	if !s.startedAt.IsZero() {
		uptime = time.Since(s.startedAt).Milliseconds()
	}
	rc.Respond(HealthResponse{
		Status:        "ok",
		Version:       s.version,
		Clients:       s.conns.Count(),
		Subscriptions: s.conns.Subscriptions(),
		UptimeMs:      uptime,
	})
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "access denied for config path: "+p.Key)
		return
	}
	key, err := config.ParseKey(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.RLock()
	val, ok := key.Lookup(s.configRaw)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError(CodeNotFound, "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError(CodeInvalidParams, "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError(CodeForbidden, "cannot modify config path: "+p.Key)
		return
	}
	key, err := config.ParseKey(p.Key)
	if err != nil {
		rc.RespondError(CodeInvalidParams, err.Error())
		return
	}

	s.mu.Lock()
	prev, had := key.Lookup(s.configRaw)
	key.Assign(s.configRaw, p.Value)
	if msg := validateRaw(s.configRaw); msg != "" {
		if had {
			key.Assign(s.configRaw, prev)
		} else {
			key.Remove(s.configRaw)
		}
		s.mu.Unlock()
		rc.RespondError(CodeInvalidParams, msg)
		return
	}
	s.mu.Unlock()

	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

// validateRaw returns the first problem with a raw config, or "".
func validateRaw(raw map[string]any) string {
	cfg, err := config.LoadFromRaw(raw)
	if err != nil {
		return err.Error()
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		return issues[0].Path + ": " + issues[0].Message
	}
	return ""
}
