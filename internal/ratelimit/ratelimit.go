package ratelimit

import (
	"sync"
	"time"

	"github.com/eleven-am/consult-backend/internal/auth"
	"github.com/eleven-am/consult-backend/internal/shared"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type Config struct {
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		Burst:             20,
		IdleTTL:           5 * time.Minute,
	}
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store keeps one token bucket per key and evicts buckets idle for longer
// than IdleTTL.
type Store struct {
	mu       sync.Mutex
	limiters map[string]*entry
	config   Config
	now      func() time.Time
	done     chan struct{}
	once     sync.Once
}

func NewStore(cfg Config) *Store {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}
	s := &Store{
		limiters: make(map[string]*entry),
		config:   cfg,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *Store) Allow(key string) bool {
	s.mu.Lock()
	e, ok := s.limiters[key]
	if !ok {
		e = &entry{limiter: NewLimiter(s.config.RequestsPerSecond, s.config.Burst)}
		s.limiters[key] = e
	}
	e.lastSeen = s.now()
	s.mu.Unlock()

	return e.limiter.Allow()
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *Store) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *Store) evictIdle() {
	cutoff := s.now().Add(-s.config.IdleTTL)
	s.mu.Lock()
	for key, e := range s.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(s.limiters, key)
		}
	}
	s.mu.Unlock()
}

// NewLimiter builds a single token bucket, used directly for per-socket
// limits.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Middleware limits by authenticated user when claims are present, by client
// IP otherwise.
func Middleware(store *Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if claims := auth.GetClaims(c); claims != nil {
				key = "user:" + claims.UserID
			}

			if !store.Allow(key) {
				return shared.TooManyRequests("rate_limited", "too many requests")
			}
			return next(c)
		}
	}
}
