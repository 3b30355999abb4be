package apigateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtauth "github.com/NordCoder/Taskboard/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Healthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := true
	r := NewRouter(Deps{
		Verifier: jwtauth.NewTokens(jwtauth.Config{Secret: []byte("s"), AccessTTL: time.Minute}),
		Health: func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("down")
		},
	})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz", nil).Code)
	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/healthz", nil).Code)
}

func TestRouter_ChannelRouteSkipsGroupAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var hit bool
	r := NewRouter(Deps{
		Verifier: jwtauth.NewTokens(jwtauth.Config{Secret: []byte("s"), AccessTTL: time.Minute}),
		Channel: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hit = true
			w.WriteHeader(http.StatusUnauthorized)
		}),
	})

	w := serve(r, http.MethodGet, "/api/v1/ws", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, hit)
}

func TestRouter_CORSAndRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Deps{
		Verifier:    jwtauth.NewTokens(jwtauth.Config{Secret: []byte("s"), AccessTTL: time.Minute}),
		CORSOrigins: []string{"http://app.local"},
	})
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := serve(r, http.MethodOptions, "/api/v1/notifications", map[string]string{"Origin": "http://app.local"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/healthz", map[string]string{"Origin": "http://evil.local"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
