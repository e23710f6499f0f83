package middleware

import (
	"bytes"
	"crypto/sha256"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "waitgate/pkg/errors"
	"waitgate/pkg/logger"
	"waitgate/pkg/session"
)

const (
	IdempotencyKeyHeader     = "Idempotency-Key"
	IdempotentReplayedHeader = "Idempotent-Replayed"
	idempotencySweepInterval = 10 * time.Minute
)

type IdempotencyStore interface {
	Get(key string) (*CachedResponse, bool)
	Set(key string, response *CachedResponse)
	Stop()
}

// CachedResponse is a successful response kept for replay. Fingerprint is a
// hash of the request body that produced it.
type CachedResponse struct {
	Fingerprint [sha256.Size]byte
	StatusCode  int
	Headers     http.Header
	Body        []byte
	CreatedAt   time.Time
}

type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*CachedResponse
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		entries: make(map[string]*CachedResponse),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go s.sweep(idempotencySweepInterval)
	return s
}

func (s *InMemoryIdempotencyStore) Get(key string) (*CachedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.expired(entry) {
		delete(s.entries, key)
		return nil, false
	}
	return entry, true
}

func (s *InMemoryIdempotencyStore) Set(key string, response *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response.CreatedAt = s.now()
	s.entries[key] = response
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *InMemoryIdempotencyStore) expired(entry *CachedResponse) bool {
	return s.now().Sub(entry.CreatedAt) > s.ttl
}

func (s *InMemoryIdempotencyStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for key, entry := range s.entries {
				if s.expired(entry) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

type bodyCapture struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (bc *bodyCapture) WriteHeader(status int) {
	if bc.status == 0 {
		bc.status = status
	}
	bc.ResponseWriter.WriteHeader(status)
}

func (bc *bodyCapture) Write(b []byte) (int, error) {
	if bc.status == 0 {
		bc.status = http.StatusOK
	}
	bc.body.Write(b)
	return bc.ResponseWriter.Write(b)
}

// Idempotency replays the stored 2xx response when a POST repeats an
// Idempotency-Key. Keys are scoped to the route and the session user, so a
// key never returns another caller's response. Reusing a key with a
// different body is a conflict.
func Idempotency(store IdempotencyStore, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scopedIdempotencyKey(r)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, log, apperrors.InvalidInput("Failed to read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := sha256.Sum256(body)

			if cached, ok := store.Get(key); ok {
				if cached.Fingerprint != fingerprint {
					writeError(w, log, apperrors.Conflict("Idempotency-Key was already used with a different request body"))
					return
				}
				replay(w, cached)
				return
			}

			capture := &bodyCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.status < 200 || capture.status >= 300 {
				return
			}
			store.Set(key, &CachedResponse{
				Fingerprint: fingerprint,
				StatusCode:  capture.status,
				Headers:     w.Header().Clone(),
				Body:        bytes.Clone(capture.body.Bytes()),
			})
		})
	}
}

func scopedIdempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		return ""
	}

	caller := ""
	if s, ok := session.FromContext(r.Context()); ok {
		caller = s.UserID
	}
	return strings.Join([]string{r.Method, r.URL.Path, caller, key}, "|")
}

func replay(w http.ResponseWriter, cached *CachedResponse) {
	dst := w.Header()
	for k, vv := range cached.Headers {
		if k == RequestIDHeader {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
	dst.Set(IdempotentReplayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
