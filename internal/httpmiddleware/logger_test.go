package httpmiddleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeURL(t *testing.T) {
	u, err := url.Parse("https://api.telegram.org/bot123456:AA-secret_Token/sendMessage?chat_id=1")
	require.NoError(t, err)

	assert.Equal(t, "https://api.telegram.org/bot[REDACTED]/sendMessage", SafeURL(u))
	assert.Equal(t, "", SafeURL(nil))
}

func TestLoggerDoesNotLeakSecrets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := NewClient(5*time.Second, Logger(logger))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/bot42:topsecret/sendMessage", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer hunter2")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	assert.NotContains(t, out, "topsecret")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "level=ERROR")
}

func TestWrapOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}

	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	_, err := Wrap(base, mw("outer"), mw("inner")).RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"outer", "inner", "base"}, order)
}

func TestLevelForStatus(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelForStatus(200))
	assert.Equal(t, slog.LevelWarn, LevelForStatus(404))
	assert.Equal(t, slog.LevelError, LevelForStatus(503))
}
