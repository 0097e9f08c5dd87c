package core

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"pawtrail/internal/types"
)

// RateLimitStore counts requests per key within a fixed window.
type RateLimitStore interface {
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult is the outcome of one IncrementAndCheck.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

const (
	defaultRateLimitMax    = 30
	defaultRateLimitWindow = time.Minute
)

type windowCounter struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimitStore is a fixed-window counter held in a go-cache. It is
// per-process, which suits a single API container or one Lambda instance.
type MemoryRateLimitStore struct {
	mu    sync.Mutex
	cache *cache.Cache
	now   func() time.Time
}

// NewMemoryRateLimitStore returns a per-process fixed-window store. Counters
// expire with their window; the cache janitor sweeps every five minutes.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		cache: cache.New(cache.NoExpiration, 5*time.Minute),
		now:   time.Now,
	}
}

// IncrementAndCheck counts one request for key and reports whether it is
// within limit for the current window. It never returns an error.
func (m *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	wc := &windowCounter{resetAt: now.Add(window)}
	if v, ok := m.cache.Get(key); ok {
		if existing := v.(*windowCounter); now.Before(existing.resetAt) {
			wc = existing
		}
	}
	wc.count++
	m.cache.Set(key, wc, wc.resetAt.Sub(now))

	return RateLimitResult{
		Allowed:   wc.count <= limit,
		Remaining: max(limit-wc.count, 0),
		ResetAt:   wc.resetAt,
	}, nil
}

// RateLimit throttles POST requests per client IP. Reads pass through. Store
// errors fail open.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	limit, window := defaultRateLimitMax, defaultRateLimitWindow
	if s.Config != nil && s.Config.Server.RateLimitPerMinute > 0 {
		limit = s.Config.Server.RateLimitPerMinute
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimitStore == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		res, err := s.RateLimitStore.IncrementAndCheck(r.Context(), "ip:"+ip, limit, window)
		if err != nil {
			s.Logger.ErrorContext(r.Context(), "rate limit store error", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retry := max(int(time.Until(res.ResetAt).Seconds()), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			s.Logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("client_ip", ip), slog.String("path", r.URL.Path))
			Error(w, r, types.NewAppError(types.ErrCodeRateLimit,
				"rate limit exceeded; retry after the reset time", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For entry, then RemoteAddr without
// its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
