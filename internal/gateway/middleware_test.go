package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func serve(h http.Handler, method, origin, reqID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/health", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if reqID != "" {
		req.Header.Set(requestIDHeader, reqID)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), tag("outer"), tag("inner"))

	serve(h, http.MethodGet, "", "")
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRequestID(t *testing.T) {
	h := requestID()(okHandler("ok"))

	assert.NotEmpty(t, serve(h, http.MethodGet, "", "").Header().Get(requestIDHeader))
	assert.Equal(t, "custom-id-123", serve(h, http.MethodGet, "", "custom-id-123").Header().Get(requestIDHeader))
}

func TestAllowOrigins(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    string
	}{
		{"unconfigured denies", nil, "http://localhost:3000", ""},
		{"wildcard echoes origin", []string{"*"}, "http://localhost:3000", "http://localhost:3000"},
		{"listed origin", []string{"http://allowed.com"}, "http://allowed.com", "http://allowed.com"},
		{"unlisted origin", []string{"http://allowed.com"}, "http://evil.com", ""},
		{"no origin header", []string{"*"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(allowOrigins(tt.origins)(okHandler("ok")), http.MethodGet, tt.origin, "")
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestAllowOriginsPreflight(t *testing.T) {
	rr := serve(allowOrigins(nil)(okHandler("should not reach")), http.MethodOptions, "http://localhost:3000", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestWebsocketOrigin(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, websocketOrigin(nil)(req("")), "non-browser clients send no Origin")
	assert.False(t, websocketOrigin(nil)(req("http://evil.com")))
	assert.True(t, websocketOrigin([]string{"*"})(req("http://anything.com")))

	listed := websocketOrigin([]string{"http://one.com", "http://two.com"})
	assert.True(t, listed(req("http://one.com")))
	assert.True(t, listed(req("http://two.com")))
	assert.False(t, listed(req("http://three.com")))
}

func TestRecoverPanics(t *testing.T) {
	h := recoverPanics(testLog())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	var rr *httptest.ResponseRecorder
	require.NotPanics(t, func() { rr = serve(h, http.MethodGet, "", "") })
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestResponseRecorderCounts(t *testing.T) {
	rr := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: rr, status: http.StatusOK}
	rec.WriteHeader(http.StatusAccepted)
	rec.Write([]byte("hello"))

	assert.Equal(t, http.StatusAccepted, rec.status)
	assert.Equal(t, 5, rec.written)
	assert.Same(t, rr, rec.Unwrap())

	_, _, err := rec.Hijack()
	assert.Error(t, err, "httptest recorder cannot be hijacked")
}

func TestHTTPStack(t *testing.T) {
	h := httpStack(okHandler("ok"), testLog(), []string{"http://test.com"})

	rr := serve(h, http.MethodGet, "http://test.com", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(requestIDHeader))
	assert.Equal(t, "http://test.com", rr.Header().Get("Access-Control-Allow-Origin"))

	denied := serve(httpStack(okHandler("ok"), testLog(), nil), http.MethodGet, "http://test.com", "")
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}
