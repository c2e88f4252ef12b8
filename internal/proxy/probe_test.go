package proxy

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_HTTPProxy(t *testing.T) {
	var hits atomic.Int32
	fwd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A forward proxy receives the absolute target URL.
		if r.URL.Host == "target.invalid" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer fwd.Close()

	latency, err := Check(context.Background(), fwd.URL, "http://target.invalid/", 5*time.Second)
	require.NoError(t, err)
	assert.Greater(t, latency, time.Duration(0))
	assert.Equal(t, int32(1), hits.Load())
}

func TestCheck_ProxyAuthRequired(t *testing.T) {
	fwd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusProxyAuthRequired)
	}))
	defer fwd.Close()

	_, err := Check(context.Background(), fwd.URL, "http://target.invalid/", 5*time.Second)
	assert.Error(t, err)
}

func TestCheck_SOCKSUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Check(context.Background(), "socks5://"+addr, "web.whatsapp.com:443", time.Second)
	assert.Error(t, err)
}

func TestCheck_InvalidEndpoints(t *testing.T) {
	_, err := Check(context.Background(), "ftp://h:21", "http://x/", time.Second)
	assert.ErrorIs(t, err, ErrInvalidProxy)

	_, err = Check(context.Background(), "http://", "http://x/", time.Second)
	assert.ErrorIs(t, err, ErrInvalidProxy)
}
