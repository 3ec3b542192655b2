package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// CachingConfig configures the ETag/Last-Modified middleware.
type CachingConfig struct {
	// MaxAge sets Cache-Control's max-age directive.
	MaxAge time.Duration
	// Now returns the current time; defaults to time.Now. Tests override it
	// for deterministic Last-Modified values.
	Now func() time.Time
}

// bufferingResponseWriter captures the status and body of a response so the
// ETag middleware can compute the body hash before anything is flushed to
// the client — an ETag can't be derived incrementally.
type bufferingResponseWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferingResponseWriter) WriteHeader(status int) {
	b.status = status
}

func (b *bufferingResponseWriter) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

// ETag computes the strong validator this middleware assigns to a response
// body: the first 16 bytes of the body's SHA-256 digest, hex-encoded and
// quoted per RFC 7232.
func ETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// Caching builds a gorilla/mux.MiddlewareFunc that, for successful (200)
// responses, computes a strong ETag and Last-Modified header and serves 304
// Not Modified to clients whose If-None-Match or If-Modified-Since already
// indicates freshness.
func Caching(cfg CachingConfig) mux.MiddlewareFunc {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 60 * time.Second
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := &bufferingResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(buf, r)

			if buf.status != http.StatusOK {
				w.WriteHeader(buf.status)
				_, _ = w.Write(buf.body.Bytes())
				return
			}

			body := buf.body.Bytes()
			etag := ETag(body)
			lastModified := now().UTC()

			if isFresh(r, etag, lastModified) {
				w.Header().Set("ETag", etag)
				w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
				w.Header().Set("Cache-Control", cacheControl(maxAge))
				w.WriteHeader(http.StatusNotModified)
				return
			}

			w.Header().Set("ETag", etag)
			w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))
			w.Header().Set("Cache-Control", cacheControl(maxAge))
			w.WriteHeader(buf.status)
			_, _ = w.Write(body)
		})
	}
}

func cacheControl(maxAge time.Duration) string {
	seconds := int64(maxAge / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	return "private, max-age=" + strconv.FormatInt(seconds, 10)
}

// isFresh reports whether the request's conditional headers indicate the
// client's cached copy is still valid.
func isFresh(r *http.Request, etag string, lastModified time.Time) bool {
	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if inm == "*" {
			return true
		}
		for _, candidate := range strings.Split(inm, ",") {
			if strings.TrimSpace(candidate) == etag {
				return true
			}
		}
		return false
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		clientTime, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		return !lastModified.Truncate(time.Second).After(clientTime)
	}
	return false
}
