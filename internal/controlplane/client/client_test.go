package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/reconcile", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"examined":3,"canceled":1,"already_closed":1,"skipped":0,"errors":1,"abandoned":0}`))
	}))
	defer srv.Close()

	rep, err := New(srv.URL).Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Examined)
	assert.Equal(t, 1, rep.Canceled)
	assert.Equal(t, 1, rep.Errors)
}

func TestReconcileServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"reconciler not running"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestReconcileUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	_, err := New(addr).Reconcile(context.Background())
	assert.Error(t, err)
}
