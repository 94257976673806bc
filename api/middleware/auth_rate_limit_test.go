package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coutlabs/cout-backend/pkg/config"
	pkgerrors "github.com/coutlabs/cout-backend/pkg/errors"
)

type memoryRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemoryRateStore() *memoryRateStore {
	return &memoryRateStore{counts: map[string]int64{}}
}

func (m *memoryRateStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryRateStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.counts))
	for k := range m.counts {
		out = append(out, k)
	}
	return out
}

func postLogin(handler http.Handler, email, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestThrottlePassesRequestThroughUnderLimit(t *testing.T) {
	store := newMemoryRateStore()
	policy := ThrottlePolicy{Surface: "login", Window: time.Minute, PerIP: 2, PerEmail: 2}
	handler := Throttle(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if !strings.Contains(string(body), `"email":"tester@example.com"`) {
			t.Fatalf("body must survive the email sniff, got %s", string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := postLogin(handler, "tester@example.com", "1.2.3.4:5678")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestThrottleBlocksEmailFloodAcrossAddresses(t *testing.T) {
	store := newMemoryRateStore()
	policy := ThrottlePolicy{Surface: "login", Window: time.Minute, PerEmail: 2}
	handler := Throttle(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	addrs := []string{"1.2.3.4:1", "5.6.7.8:2", "9.9.9.9:3"}
	for i, addr := range addrs {
		rec := postLogin(handler, "blocked@example.com", addr)
		if i < 2 {
			if rec.Code != http.StatusOK {
				t.Fatalf("attempt %d: expected success before limit, got %d", i, rec.Code)
			}
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
			t.Fatalf("unexpected code: %s", payload.Error.Code)
		}
	}
}

func TestThrottleBlocksAddressScan(t *testing.T) {
	store := newMemoryRateStore()
	policy := RegisterThrottle(config.AuthRateLimitConfig{
		RegisterWindow:  time.Minute,
		RegisterIPLimit: 1,
	})
	handler := Throttle(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Same address rotating through emails still trips the IP cap.
	emails := []string{"a@example.com", "b@example.com"}
	for i, email := range emails {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
		req.RemoteAddr = "5.6.7.8:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i == 0 && rec.Code != http.StatusOK {
			t.Fatalf("expected success, got %d", rec.Code)
		}
		if i == 1 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
	}
}

func TestThrottleKeysNeverContainRawEmail(t *testing.T) {
	store := newMemoryRateStore()
	policy := LoginThrottle(config.AuthRateLimitConfig{
		LoginWindow:     time.Minute,
		LoginEmailLimit: 5,
	})
	handler := Throttle(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	postLogin(handler, "private@example.com", "1.2.3.4:5678")

	keys := store.keys()
	if len(keys) == 0 {
		t.Fatal("expected a counter key")
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, throttleKeyPrefix+":login:") {
			t.Fatalf("key %q missing surface prefix", key)
		}
		if strings.Contains(key, "private@example.com") {
			t.Fatalf("key %q leaks the raw email", key)
		}
	}
}
