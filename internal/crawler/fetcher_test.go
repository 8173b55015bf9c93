package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricewatch/internal/proxy"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			gotUA = r.UserAgent()
			gotAccept = r.Header.Get("Accept")
			fmt.Fprint(w, "<html><h1>ok</h1></html>")
		case "/empty":
			w.WriteHeader(http.StatusOK)
		case "/forbidden":
			http.Error(w, "no", http.StatusForbidden)
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherOptions{Timeout: 5 * time.Second, UserAgent: "pricewatch-test"})
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		html, err := f.Fetch(ctx, srv.URL+"/ok", nil)
		require.NoError(t, err)
		assert.Contains(t, html, "<h1>ok</h1>")
		assert.Equal(t, "pricewatch-test", gotUA)
		assert.Contains(t, gotAccept, "text/html")
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/empty", nil)
		assert.ErrorIs(t, err, ErrEmptyBody)
	})

	t.Run("non-2xx status", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/forbidden", nil)
		var fe *FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, http.StatusForbidden, fe.StatusCode)
	})

	t.Run("redirect limit", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/loop", nil)
		var fe *FetchError
		require.True(t, errors.As(err, &fe))
		assert.Contains(t, err.Error(), "redirects")
	})

	t.Run("unsupported proxy protocol", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/ok", &proxy.Entry{Host: "10.0.0.1", Port: 1, Protocol: "ftp"})
		var fe *FetchError
		assert.True(t, errors.As(err, &fe))
	})
}

func TestHTTPFetcher_ThroughHTTPProxy(t *testing.T) {
	var proxied string
	proxySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied = r.URL.String()
		fmt.Fprint(w, "<html>via proxy</html>")
	}))
	defer proxySrv.Close()

	entry, err := proxy.ParseManual(proxySrv.URL)
	require.NoError(t, err)

	f := NewHTTPFetcher(HTTPFetcherOptions{Timeout: 5 * time.Second})
	html, err := f.Fetch(context.Background(), "http://shop.test/p/1", &entry)
	require.NoError(t, err)
	assert.Contains(t, html, "via proxy")
	assert.Equal(t, "http://shop.test/p/1", proxied)
}

func TestFetchError(t *testing.T) {
	assert.Equal(t, "fetch http://x: unexpected status 500", (&FetchError{URL: "http://x", StatusCode: 500}).Error())

	inner := errors.New("reset")
	err := &FetchError{URL: "http://x", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "fetch http://x: reset", err.Error())
}
