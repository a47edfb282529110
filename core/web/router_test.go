package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-firehose/core/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter_Healthz(t *testing.T) {
	registry := NewSubscriptionRegistry()
	r, err := NewRouter(RouterConfig{}, registry, logger.Default)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_Metrics(t *testing.T) {
	r, err := NewRouter(RouterConfig{}, NewSubscriptionRegistry(), logger.Default)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_Subscriptions(t *testing.T) {
	registry := NewSubscriptionRegistry()
	update, _ := registry.Register("sub-1")
	update(10, "NEW")

	r, err := NewRouter(RouterConfig{}, registry, logger.Default)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v2/subscriptions", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sub-1")
}
