package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/titannet/titannet-server/internal/auth"
	"golang.org/x/time/rate"
)

type contextKey string

const userIdKey contextKey = "user-id"

// UserId extracts the authenticated user id placed in the request context by
// authMiddleware.
func UserId(ctx context.Context) (int, bool) {
	userId, ok := ctx.Value(userIdKey).(int)
	return userId, ok
}

// errorHandler recovers panics from downstream handlers and converts them
// into a plain 500 so a bad request cannot take the server down.
func (app *TitanApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				app.log.Println("panic serving request:", rec)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates the bearer token and stores the user id in the
// request context.
func (app *TitanApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			app.writeError(w, NewUnauthorizedError())
			return
		}

		userId, err := auth.VerifyToken(app.config.SigningKey, tokenString)
		if err != nil {
			app.log.Println("token verify failed:", err)
			app.writeError(w, NewUnauthorizedError())
			return
		}

		ctx := context.WithValue(r.Context(), userIdKey, userId)
		w.Header().Add("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

// adminMiddleware gates moderation endpoints. It assumes authMiddleware has
// already run.
func (app *TitanApp) adminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		if !ok {
			app.writeError(w, NewUnauthorizedError())
			return
		}

		user, err := app.db.GetUserById(userId)
		if err != nil {
			app.writeError(w, NewUnauthorizedError())
			return
		}

		if !user.IsAdmin {
			app.writeError(w, NewForbiddenError(CodeNotAuthorized, "admin access required"))
			return
		}

		next(w, r)
	})
}

const (
	uploadRatePerSecond = 0.2
	uploadBurst         = 3
)

type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(uploadRatePerSecond), uploadBurst)
		rl.limiters[key] = limiter
	}

	return limiter.Allow()
}

// rateLimitMiddleware throttles uploads per client address.
func (app *TitanApp) rateLimitMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		if !app.uploadLimiter.allow(host) {
			app.writeError(w, NewRateLimitedError())
			return
		}

		next(w, r)
	}
}
