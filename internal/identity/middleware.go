package identity

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"gigmarket/internal/repository"
	"gigmarket/models"
)

const authCookieName = "access_token"

type ctxKey struct{}

type principal struct {
	actor  *models.User
	claims Claims
}

// UserLoader - источник пользователей для проверенных токенов
type UserLoader interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

type Authenticator struct {
	secret []byte
	users  UserLoader
	cache  Cache
	logger *log.Logger
	now    func() time.Time
}

// NewAuthenticator создает Authenticator; cache может быть nil
func NewAuthenticator(secret []byte, users UserLoader, cache Cache, logger *log.Logger) *Authenticator {
	return &Authenticator{
		secret: secret,
		users:  users,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

func WithActor(ctx context.Context, actor *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, principal{actor: actor})
}

// ActorFrom возвращает пользователя запроса или nil
func ActorFrom(ctx context.Context) *models.User {
	p, _ := ctx.Value(ctxKey{}).(principal)
	return p.actor
}

func claimsFrom(ctx context.Context) (Claims, bool) {
	p, ok := ctx.Value(ctxKey{}).(principal)
	return p.claims, ok && p.claims.ID != ""
}

// Authenticate проверяет токен и находит его владельца
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*models.User, Claims, error) {
	claims, err := ParseToken(raw, a.secret)
	if err != nil {
		return nil, Claims{}, err
	}
	if a.cache != nil {
		revoked, err := a.cache.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, Claims{}, err
		}
		if revoked {
			return nil, Claims{}, ErrRevokedToken
		}
		actor, err := a.cache.GetActor(ctx, claims.UserID)
		if err != nil {
			a.logger.Printf("actor cache read failed for user %d: %v", claims.UserID, err)
		}
		if actor != nil {
			return actor, claims, nil
		}
	}

	actor, err := a.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, Claims{}, ErrInvalidToken
	}
	if err != nil {
		return nil, Claims{}, err
	}
	if a.cache != nil {
		if err := a.cache.SetActor(ctx, actor); err != nil {
			a.logger.Printf("actor cache write failed for user %d: %v", actor.ID, err)
		}
	}
	return actor, claims, nil
}

// Middleware пропускает дальше только запросы с действующим токеном
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, claims, err := a.Authenticate(r.Context(), tokenFromRequest(r))
		switch {
		case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrRevokedToken):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		case err != nil:
			a.logger.Printf("authentication failed: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, principal{actor: actor, claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logout отзывает текущий токен до истечения его срока
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if a.cache == nil {
		http.Error(w, "Token revocation is not available", http.StatusServiceUnavailable)
		return
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(a.now())
	}
	if ttl > 0 {
		if err := a.cache.Revoke(r.Context(), claims.ID, ttl); err != nil {
			a.logger.Printf("failed to revoke token %s: %v", claims.ID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func tokenFromRequest(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if cookie, err := r.Cookie(authCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
