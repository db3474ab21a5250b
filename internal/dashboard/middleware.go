package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"agencyops/internal/metrics"
	"agencyops/pkg/logx"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	claimsKey    contextKey = "claims"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// RequestID reads the id assigned by the request id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// SessionClaims returns the claims of an authenticated request.
func SessionClaims(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func recoverer(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					log.Error("handler panic",
						logx.String("request_id", RequestID(r.Context())),
						logx.String("path", r.URL.Path),
						logx.String("panic", fmt.Sprint(p)),
						logx.String("stack", string(debug.Stack())),
					)
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// accessLog logs one line per request and records request metrics.
func accessLog(log logx.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			took := time.Since(start)

			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			if m != nil {
				m.ObserveHTTP(r.Method, route, rec.status, took)
			}

			fields := []logx.Field{
				logx.String("request_id", RequestID(r.Context())),
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.String("route", route),
				logx.Int("status", rec.status),
				logx.Int("bytes", rec.bytes),
				logx.Duration("took", took),
				logx.String("remote", r.RemoteAddr),
			}
			switch {
			case rec.status >= 500:
				log.Error("http request", fields...)
			case rec.status >= 400:
				log.Warn("http request", fields...)
			default:
				log.Debug("http request", fields...)
			}
		})
	}
}

func bodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit configures the per-IP request limit.
type RateLimit struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// rateLimiter is a per-IP limiter whose settings can be swapped at runtime.
type rateLimiter struct {
	log logx.Logger
	mw  atomic.Pointer[func(http.Handler) http.Handler]
}

func newRateLimiter(cfg RateLimit, log logx.Logger) *rateLimiter {
	l := &rateLimiter{log: log}
	l.apply(cfg)
	return l
}

func (l *rateLimiter) apply(cfg RateLimit) {
	mw := func(next http.Handler) http.Handler { return next }
	if cfg.Enabled && cfg.Requests > 0 && cfg.Window > 0 {
		mw = httprate.Limit(
			cfg.Requests,
			cfg.Window,
			httprate.WithKeyByIP(),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				l.log.Warn("rate limit exceeded",
					logx.String("remote", r.RemoteAddr),
					logx.String("path", r.URL.Path),
					logx.String("method", r.Method),
				)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			}),
		)
	}
	l.mw.Store(&mw)
}

func (l *rateLimiter) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		(*l.mw.Load())(next).ServeHTTP(w, r)
	})
}

// authenticate requires a valid session and stores its claims in the context.
func authenticate(s *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing session")
				return
			}
			claims, err := s.Parse(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// requireAdmin must run after authenticate.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := SessionClaims(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing session")
			return
		}
		if !c.IsAdmin() {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
