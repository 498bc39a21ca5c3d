package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-atlas/framework/container"
	gohttp "github.com/km-arc/go-atlas/framework/http"
)

type cart struct {
	id    int64
	owner *http.Request
}

func TestScopeMiddleware_OneInstancePerRequest(t *testing.T) {
	var built atomic.Int64
	c := container.New().AddScoped("cart", func(r *http.Request) *cart {
		return &cart{id: built.Add(1), owner: r}
	}, container.WithParams(gohttp.RequestKey))
	require.NoError(t, gohttp.RegisterRequest(c))

	var ids []int64
	handler := gohttp.ScopeMiddleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := gohttp.NewRequest(r, c)
		first, err := gohttp.Service[*cart](req, "cart")
		require.NoError(t, err)
		second, err := gohttp.Service[*cart](req, "cart")
		require.NoError(t, err)

		assert.Same(t, first, second)
		stored, ok := gohttp.RequestFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, stored.URL.Path, first.owner.URL.Path)
		ids = append(ids, first.id)
		w.WriteHeader(http.StatusNoContent)
	}))

	for range 2 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	}
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestScopeMiddleware_OpensScope(t *testing.T) {
	c := container.New()
	var scope *container.Scope
	handler := gohttp.ScopeMiddleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope = c.GetScope(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotNil(t, scope)
}

func TestRegisterRequest_OutsideRequest(t *testing.T) {
	c := container.New()
	require.NoError(t, gohttp.RegisterRequest(c))

	ctx, _ := c.BeginScope(context.Background())
	_, err := c.Make(ctx, gohttp.RequestKey)
	assert.Error(t, err)
}

func TestScopeMiddleware_InjectedRequestCarriesScope(t *testing.T) {
	c := container.New().AddScoped("cart", func() *cart { return &cart{} })
	require.NoError(t, gohttp.RegisterRequest(c))

	handler := gohttp.ScopeMiddleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		injected, err := gohttp.Service[*http.Request](gohttp.NewRequest(r, c), gohttp.RequestKey)
		require.NoError(t, err)
		assert.Same(t, c.GetScope(r.Context()), c.GetScope(injected.Context()))
		require.NotNil(t, c.GetScope(injected.Context()))

		fromHandler, err := gohttp.Service[*cart](gohttp.NewRequest(r, c), "cart")
		require.NoError(t, err)
		fromInjected, err := gohttp.Service[*cart](gohttp.NewRequest(injected, c), "cart")
		require.NoError(t, err)
		assert.Same(t, fromHandler, fromInjected)
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
