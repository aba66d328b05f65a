package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, calls *atomic.Int64, handler http.HandlerFunc) *Nominatim {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	n, err := NewNominatim(Options{URL: srv.URL, UserAgent: "moments-test", RPS: 1000, Language: "cs"})
	require.NoError(t, err)
	return n
}

func TestResolve(t *testing.T) {
	var calls atomic.Int64
	n := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "50.087500", r.URL.Query().Get("lat"))
		assert.Equal(t, "moments-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "cs", r.Header.Get("Accept-Language"))
		fmt.Fprint(w, `{"name":"Staroměstské náměstí","display_name":"Staroměstské náměstí, Praha","address":{"suburb":"Staré Město","city":"Praha","country":"Česko"}}`)
	})

	name, err := n.Resolve(context.Background(), 50.0875, 14.4213)
	require.NoError(t, err)
	assert.Equal(t, "Praha", name)

	name, err = n.Resolve(context.Background(), 50.08751, 14.42129)
	require.NoError(t, err)
	assert.Equal(t, "Praha", name)
	assert.Equal(t, int64(1), calls.Load(), "nearby coordinates are memoized")
}

func TestResolve_UnknownPlace(t *testing.T) {
	var calls atomic.Int64
	n := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"Unable to geocode"}`)
	})

	name, err := n.Resolve(context.Background(), 0.1, -30)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestResolve_ServerErrorIsNotMemoized(t *testing.T) {
	var calls atomic.Int64
	n := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		if calls.Load() == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"address":{"town":"Mikulov"}}`)
	})

	_, err := n.Resolve(context.Background(), 48.8, 16.6)
	require.Error(t, err)

	name, err := n.Resolve(context.Background(), 48.8, 16.6)
	require.NoError(t, err)
	assert.Equal(t, "Mikulov", name)
}

func TestResolve_RateLimitHonoursContext(t *testing.T) {
	var calls atomic.Int64
	n := newServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"address":{"village":"Lednice"}}`)
	})
	n.limiter.SetLimit(0.001)
	n.limiter.SetBurst(1)

	_, err := n.Resolve(context.Background(), 48.79, 16.80)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = n.Resolve(ctx, 10, 10)
	assert.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestPlaceName(t *testing.T) {
	tests := []struct {
		name string
		in   reverseResponse
		want string
	}{
		{"city first", reverseResponse{Address: map[string]string{"city": "Brno", "country": "Česko"}}, "Brno"},
		{"falls back to name", reverseResponse{Name: "Sněžka"}, "Sněžka"},
		{"falls back to display name", reverseResponse{DisplayName: "Lipno, Jihočeský kraj"}, "Lipno"},
		{"error", reverseResponse{Error: "Unable to geocode", Name: "x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, placeName(tt.in))
		})
	}
}
