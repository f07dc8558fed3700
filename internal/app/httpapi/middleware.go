package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/infogenie/backend/internal/app/services/credits"
	"github.com/infogenie/backend/internal/app/storage"
)

type contextKey string

const ctxUserIDKey contextKey = "user_id"

// Claims are the JWT claims issued at login. Only user_id is mandatory.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// userID extracts the authenticated user from the request context.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserIDKey).(string)
	return id
}

// authenticate validates the Bearer token and stores the user id in the
// request context. HS256 only; any other algorithm is rejected.
func (h *handler) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeAPIError(w, http.StatusUnauthorized, "auth_required", "missing authorization header", nil)
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid || claims.UserID == "" {
			code := "invalid_token"
			message := "invalid authorization token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = "token_expired"
				message = "token expired, sign in again"
			}
			h.log.WithError(err).Warn("token validation failed")
			writeAPIError(w, http.StatusUnauthorized, code, message, nil)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserIDKey, claims.UserID)
		next(w, r.WithContext(ctx))
	}
}

// metered charges the user before the wrapped handler runs. The charge is
// not refunded if the handler fails downstream.
func (h *handler) metered(feature string, next http.HandlerFunc) http.HandlerFunc {
	return h.authenticate(func(w http.ResponseWriter, r *http.Request) {
		id := userID(r.Context())
		if !h.limiterFor(id).Allow() {
			writeAPIError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}

		_, err := h.app.Credits.Charge(r.Context(), id, feature, h.aiCost)
		if err != nil {
			var funds *credits.InsufficientFundsError
			switch {
			case errors.As(err, &funds):
				writeAPIError(w, http.StatusPaymentRequired, "insufficient_coins",
					funds.Error(), map[string]any{
						"current_coins":  funds.Current,
						"required_coins": funds.Required,
					})
			case errors.Is(err, storage.ErrUserNotFound):
				writeAPIError(w, http.StatusNotFound, "user_not_found", "user does not exist", nil)
			default:
				h.log.WithError(err).Error("charge failed")
				writeAPIError(w, http.StatusInternalServerError, "charge_failed", "could not process charge", nil)
			}
			return
		}

		next(w, r)
	})
}

// limiterFor returns the per-user limiter, creating it on first use.
func (h *handler) limiterFor(id string) *rate.Limiter {
	h.limitersMu.Lock()
	defer h.limitersMu.Unlock()

	l, ok := h.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.rateRPS), h.rateBurst)
		h.limiters[id] = l
	}
	return l
}
