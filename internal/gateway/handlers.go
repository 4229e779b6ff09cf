package gateway

import (
	"context"
	"encoding/json"
	"net/http"
)

// HealthResponse is the body of GET /health and the health RPC.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version,omitempty"`
	Clients       int    `json:"clients,omitempty"`
	Subscriptions int    `json:"subscriptions,omitempty"`
	UptimeMs      int64  `json:"uptimeMs,omitempty"`
}

// handleHealth answers the public liveness probe. Client and subscription
// counts are only reported over the authenticated health RPC.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "path": r.URL.Path})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequestHandler serves one RPC method.
type RequestHandler func(rc *RequestContext)

// RequestContext is a request frame together with the connection it arrived on.
type RequestContext struct {
	Conn   *Conn
	Frame  Frame
	Server *Server
}

// Context is cancelled when the requesting connection closes.
func (rc *RequestContext) Context() context.Context {
	if rc.Conn.ctx == nil {
		return context.Background()
	}
	return rc.Conn.ctx
}

// Respond sends payload as the successful result.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Conn.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

func (rc *RequestContext) RespondError(code, message string) {
	rc.Conn.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message})
}

// Params decodes the request params into target. Absent params leave
// target untouched.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
