package httpmiddleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"
)

// botTokenSegment matches the "/bot<id>:<secret>/" path segment of Telegram Bot API URLs
var botTokenSegment = regexp.MustCompile(`/bot\d+:[A-Za-z0-9_-]+`)

var sensitiveHeaders = []string{
	"authorization",
	"cookie",
	"set-cookie",
	"x-api-key",
	"x-auth-token",
	"x-csrf-token",
}

// Logger creates a logging middleware for http.RoundTripper.
// Request and response bodies are never logged: outbound calls carry operator notifications only.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			logRequest(logger, req)

			start := time.Now()
			resp, err := next.RoundTrip(req)
			duration := time.Since(start)

			if err != nil {
				logger.Error("HTTP request failed",
					slog.String("method", req.Method),
					slog.String("url", SafeURL(req.URL)),
					slog.Duration("duration", duration),
					slog.Any("error", err))

				return resp, err
			}

			logResponse(logger, req, resp, duration)

			return resp, nil
		})
	}
}

// logRequest logs HTTP request details
func logRequest(logger *slog.Logger, req *http.Request) {
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", SafeURL(req.URL)),
		slog.String("host", req.Host),
	}

	if len(req.Header) > 0 {
		attrs = append(attrs, headerAttrs(req.Header))
	}

	logger.LogAttrs(req.Context(), slog.LevelDebug, "📤 HTTP Request", attrs...)
}

// logResponse logs HTTP response details
func logResponse(logger *slog.Logger, req *http.Request, resp *http.Response, duration time.Duration) {
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", SafeURL(req.URL)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
	}

	logger.LogAttrs(req.Context(), LevelForStatus(resp.StatusCode), "📥 HTTP Response", attrs...)
}

// LevelForStatus maps an HTTP status to a log level
func LevelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

func headerAttrs(h http.Header) slog.Attr {
	attrs := make([]slog.Attr, 0, len(h))
	for k, v := range h {
		if IsSensitiveHeader(k) {
			attrs = append(attrs, slog.String(k, "[REDACTED]"))
		} else {
			attrs = append(attrs, slog.String(k, strings.Join(v, ", ")))
		}
	}

	return slog.Any("headers", slog.GroupValue(attrs...))
}

// SafeURL returns the URL with bot tokens and query secrets removed
func SafeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	clean := *u
	clean.User = nil
	clean.RawQuery = ""
	clean.Path = botTokenSegment.ReplaceAllString(clean.Path, "/bot[REDACTED]")
	clean.RawPath = ""

	return clean.String()
}

// IsSensitiveHeader checks if header contains sensitive information
func IsSensitiveHeader(name string) bool {
	return slices.Contains(sensitiveHeaders, strings.ToLower(name))
}
