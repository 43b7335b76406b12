package builtin

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbound(t *testing.T) {
	t.Run("Should keep guards for a bounded number of hosts", func(t *testing.T) {
		out, err := NewOutbound(testConfig("http://unused"))
		require.NoError(t, err)
		first := out.guard("host-0.example.com")
		for i := range hostCacheSize + 10 {
			out.guard(fmt.Sprintf("host-%d.example.com", i))
		}
		assert.Equal(t, hostCacheSize, out.hosts.Len())
		assert.NotSame(t, first, out.guard("host-0.example.com"))
	})

	t.Run("Should return no response when the call is abandoned at the timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			<-release
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		defer close(release)
		cfg := testConfig(srv.URL)
		cfg.HTTPTimeout = 50 * time.Millisecond
		out, err := NewOutbound(cfg)
		require.NoError(t, err)
		resp, err := out.Do(t.Context(), http.MethodGet, srv.URL+"/slow", nil)
		assert.Error(t, err)
		assert.Nil(t, resp)
	})

	t.Run("Should return the response alongside an upstream server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		out, err := NewOutbound(testConfig(srv.URL))
		require.NoError(t, err)
		resp, err := out.Do(t.Context(), http.MethodGet, srv.URL, nil)
		assert.ErrorContains(t, err, "returned 502")
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode())
	})
}
