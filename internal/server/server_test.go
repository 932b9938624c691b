package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/websites-starter/wsbuild/internal/config"
	pipelineerrors "github.com/websites-starter/wsbuild/internal/errors"
	"github.com/websites-starter/wsbuild/internal/logging"
	wsmsg "github.com/websites-starter/wsbuild/internal/websocket"
)

// newUpstream serves a tiny WordPress-like site that links to itself by
// absolute URL.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		origin := "http://" + r.Host
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		fmt.Fprintf(w, `<!DOCTYPE html><html><head><link rel="stylesheet" href="%s/wp-content/themes/starter/assets/css/default.css"></head>`+
			`<body><a href="%s/about/">About</a><a href="https://wordpress.org/">WP</a></body></html>`, origin, origin)
	})
	mux.HandleFunc("/fragment", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<li>item</li>")
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		io.WriteString(w, "body{margin:0}")
	})
	mux.HandleFunc("/wp-admin", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://"+r.Host+"/wp-login.php?redirect=1", http.StatusFound)
	})

	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)
	return upstream
}

func newTestServer(t *testing.T, target string) (*ReloadServer, *httptest.Server) {
	t.Helper()

	s, err := New(config.BuildOptions{ProxyTarget: target, Port: config.DefaultPort}, "session-1", logging.Discard())
	require.NoError(t, err)

	proxy := httptest.NewServer(s.Handler())
	t.Cleanup(proxy.Close)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	return s, proxy
}

func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func get(t *testing.T, rawURL string) (*http.Response, string) {
	t.Helper()
	resp, err := noRedirect().Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNewRejectsInvalidTarget(t *testing.T) {
	_, err := New(config.BuildOptions{ProxyTarget: "ftp://localhost/", Port: 3000}, "s", logging.Discard())
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsConfigError(err))
}

func TestProxyInjectsClient(t *testing.T) {
	upstream := newUpstream(t)
	_, proxy := newTestServer(t, upstream.URL+"/")

	resp, body := get(t, proxy.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, body, `<script src="`+ClientPath+`" async=""></script></body>`)
	assert.Contains(t, body, `href="/wp-content/themes/starter/assets/css/default.css"`)
	assert.Contains(t, body, `href="/about/"`)
	assert.Contains(t, body, `href="https://wordpress.org/"`)
	assert.NotContains(t, body, upstream.URL)
	assert.Equal(t, fmt.Sprint(len(body)), resp.Header.Get("Content-Length"))
}

func TestProxyPassesThroughOtherContent(t *testing.T) {
	upstream := newUpstream(t)
	_, proxy := newTestServer(t, upstream.URL)

	_, css := get(t, proxy.URL+"/style.css")
	assert.Equal(t, "body{margin:0}", css)

	_, fragment := get(t, proxy.URL+"/fragment")
	assert.Equal(t, "<li>item</li>", fragment)
}

func TestProxyRewritesRedirects(t *testing.T) {
	upstream := newUpstream(t)
	_, proxy := newTestServer(t, upstream.URL)

	resp, _ := get(t, proxy.URL+"/wp-admin")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/wp-login.php?redirect=1", resp.Header.Get("Location"))
}

func TestProxyUpstreamDown(t *testing.T) {
	upstream := newUpstream(t)
	target := upstream.URL
	upstream.Close()

	_, proxy := newTestServer(t, target)

	resp, body := get(t, proxy.URL+"/")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "cannot reach")
}

func TestServesClientScript(t *testing.T) {
	_, proxy := newTestServer(t, "http://localhost/")

	resp, body := get(t, proxy.URL+ClientPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, body, SocketPath)
	assert.Contains(t, body, wsmsg.MessageCSSReload)
	assert.Contains(t, body, wsmsg.MessageFullReload)
}

func TestReloadBroadcasts(t *testing.T) {
	s, proxy := newTestServer(t, "http://localhost/")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	u, err := url.Parse(proxy.URL)
	require.NoError(t, err)
	conn, _, err := websocket.Dial(ctx, "ws://"+u.Host+SocketPath, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() wsmsg.UpdateMessage {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg wsmsg.UpdateMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	assert.Equal(t, wsmsg.MessageConnected, read().Type)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Reload(ctx, wsmsg.MessageFullReload))
	msg := read()
	assert.Equal(t, wsmsg.MessageFullReload, msg.Type)
	assert.Equal(t, "session-1", msg.Session)
}

func TestReloadAfterShutdown(t *testing.T) {
	s, _ := newTestServer(t, "http://localhost/")
	require.NoError(t, s.Shutdown(context.Background()))

	err := s.Reload(context.Background(), wsmsg.MessageFullReload)
	require.Error(t, err)
	assert.True(t, pipelineerrors.IsIOError(err))
}

func TestLocalizeURL(t *testing.T) {
	target, err := url.Parse("http://localhost:8080/")
	require.NoError(t, err)

	tests := []struct {
		in       string
		expected string
	}{
		{"http://localhost:8080/about/", "/about/"},
		{"http://localhost:8080", "/"},
		{"//localhost:8080/img.png", "/img.png"},
		{"http://localhost:8080?p=1", "?p=1"},
		{"http://localhost:80801/x", "http://localhost:80801/x"},
		{"https://localhost:8080/secure", "https://localhost:8080/secure"},
		{"/already/relative", "/already/relative"},
		{"mailto:admin@localhost", "mailto:admin@localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, localizeURL(tt.in, target))
		})
	}
}

func TestInjectClientWithoutBody(t *testing.T) {
	target, _ := url.Parse("http://localhost/")

	out, injected, err := injectClient([]byte("<p>partial</p>"), target)
	require.NoError(t, err)
	assert.False(t, injected)
	assert.Equal(t, "<p>partial</p>", string(out))

	out, injected, err = injectClient([]byte("<HTML><BODY><p>x</p></BODY></HTML>"), target)
	require.NoError(t, err)
	assert.True(t, injected)
	assert.True(t, strings.Contains(string(out), ClientPath))
}

func TestProxyStripsValidators(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>page</body></html>")
	}))
	t.Cleanup(upstream.Close)
	_, proxy := newTestServer(t, upstream.URL)

	req, err := http.NewRequest(http.MethodGet, proxy.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", `"v1"`)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), ClientPath)
	assert.Empty(t, resp.Header.Get("ETag"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("outer"), mark("inner"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
