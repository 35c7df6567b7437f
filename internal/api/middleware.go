package api

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"titanic-predictor/internal/auth"
	"titanic-predictor/internal/cfg"
)

const (
	headerRequestID = "X-Request-ID"
	slowRequest     = 200 * time.Millisecond
	limiterSweepAt  = 10000
	limiterIdle     = 10 * time.Minute
)

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by the request-id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID keeps a caller-supplied X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := routeName(r)
		if s.metrics != nil {
			s.metrics.HTTPRequestInc(route, rec.status)
		}

		ev := log.Debug()
		if elapsed > slowRequest {
			ev = log.Warn().Bool("slow", true)
		}
		ev.Str("request_id", RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Str("remote", clientIP(r)).
			Msg("Request completed")
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Error().
					Str("request_id", RequestIDFromContext(r.Context())).
					Interface("panic", v).
					Msg("Handler panicked")
				writeError(w, r, fmt.Errorf("panic: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate requires a valid bearer token and stores its claims on the
// request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.authFailed(w, r, &auth.AuthenticationError{Msg: "missing bearer token"})
			return
		}
		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			s.authFailed(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	if s.metrics != nil {
		s.metrics.AuthFailureInc()
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="titanic-predictor"`)
	writeError(w, r, err)
}

// limiter is a token bucket per caller. Callers are identified by token
// subject when authenticated, otherwise by remote address.
type limiter struct {
	name  string
	limit cfg.RateLimit

	mu      sync.Mutex
	callers map[string]*callerBucket
	now     func() time.Time
}

type callerBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLimiter(name string, limit cfg.RateLimit) *limiter {
	return &limiter{name: name, limit: limit, callers: make(map[string]*callerBucket), now: time.Now}
}

func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.callers) >= limiterSweepAt {
		for k, b := range l.callers {
			if now.Sub(b.lastSeen) > limiterIdle {
				delete(l.callers, k)
			}
		}
	}

	b, ok := l.callers[key]
	if !ok {
		b = &callerBucket{lim: rate.NewLimiter(rate.Every(l.limit.Interval()), l.limit.Requests)}
		l.callers[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (s *Server) rateLimit(l *limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.UserID != "" {
				key = "user:" + claims.UserID
			}
			if !l.allow(key) {
				if s.metrics != nil {
					s.metrics.RateLimitedInc()
				}
				retry := l.limit.Interval()
				if retry < time.Second {
					retry = time.Second
				}
				writeError(w, r, &RateLimitError{Bucket: l.name, Limit: l.limit.String(), Requests: l.limit.Requests, RetryAfter: retry})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
