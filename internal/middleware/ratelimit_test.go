package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newRateLimitedHandler(t *testing.T, limit int) http.Handler {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	config := RateLimitConfig{
		RequestsPerWindow: limit,
		Window:            time.Second,
		KeyPrefix:         "ratelimit:migrate",
	}

	return RateLimitMiddleware(redisClient, config, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}),
	)
}

// Feature: marketplace-bridge, Property 19: The migration endpoint admits
// exactly the window limit and blocks the excess
func TestProperty_MigrationRequestsOverWindowAreBlocked(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("exactly the limit succeeds, the rest get 429", prop.ForAll(
		func(limit int, excess int) bool {
			handler := newRateLimitedHandler(t, limit)

			admitted := 0
			blocked := 0
			for i := 0; i < limit+excess; i++ {
				req := httptest.NewRequest("POST", "/api/migrate/to-target", nil)
				req.RemoteAddr = "10.0.0.7:51000"
				w := httptest.NewRecorder()

				handler.ServeHTTP(w, req)

				switch w.Code {
				case http.StatusAccepted:
					admitted++
				case http.StatusTooManyRequests:
					blocked++
				}
			}

			return admitted == limit && blocked == excess
		},
		gen.IntRange(3, 20),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRateLimitIsKeyedPerUser(t *testing.T) {
	handler := newRateLimitedHandler(t, 2)

	sendAs := func(userID string) int {
		req := httptest.NewRequest("POST", "/api/migrate/to-target", nil)
		ctx := context.WithValue(req.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, UserRoleKey, "user")
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	// Exhaust the first operator's window
	for i := 0; i < 2; i++ {
		if code := sendAs("op-a"); code != http.StatusAccepted {
			t.Fatalf("expected request %d from op-a to pass, got %d", i+1, code)
		}
	}
	if code := sendAs("op-a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected op-a to be throttled, got %d", code)
	}

	if code := sendAs("op-b"); code != http.StatusAccepted {
		t.Fatalf("expected op-b to have a fresh window, got %d", code)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	handler := newRateLimitedHandler(t, 5)

	req := httptest.NewRequest("GET", "/api/migrations", nil)
	req.RemoteAddr = "10.0.0.8:51001"
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("expected X-RateLimit-Limit 5, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("expected X-RateLimit-Remaining 4, got %q", got)
	}
}
