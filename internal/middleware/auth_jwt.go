package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// TokenClaims is the HS256 payload issued by the surrounding auth service.
type TokenClaims struct {
	Sub      string `json:"sub"`
	Email    string `json:"email"`
	Exp      int64  `json:"exp"`
	Issuer   string `json:"iss,omitempty"`
	Audience string `json:"aud,omitempty"`
}

// Caller is the identity resolved for a request. Both fields are empty for
// anonymous callers.
type Caller struct {
	ID    string
	Email string
}

// Anonymous reports whether no identity was resolved.
func (c Caller) Anonymous() bool {
	return c.ID == "" && c.Email == ""
}

type callerKey struct{}

var (
	errInvalidToken     = errors.New("invalid token")
	errInvalidSignature = errors.New("invalid signature")
	errTokenExpired     = errors.New("token expired")
)

func SignJWT(secret string, claims TokenClaims) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	data := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return data + "." + hmacSign(secret, data), nil
}

func hmacSign(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifyJWT(secret, token string) (*TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errInvalidToken
	}
	expected := hmacSign(secret, parts[0]+"."+parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, errInvalidSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}
	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, err
	}
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return nil, errTokenExpired
	}
	return &claims, nil
}

// AuthJWT resolves the caller from a bearer token. Requests without an
// Authorization header pass through as anonymous only when allowAnonymous is
// set; a present but invalid token is always rejected.
func AuthJWT(secret string, allowAnonymous bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				if allowAnonymous {
					next.ServeHTTP(w, r)
					return
				}
				writeAuthError(w, "missing authorization")
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeAuthError(w, "invalid authorization")
				return
			}
			claims, err := VerifyJWT(secret, strings.TrimSpace(token))
			if err != nil {
				writeAuthError(w, err.Error())
				return
			}
			ctx := ContextWithCaller(r.Context(), Caller{ID: claims.Sub, Email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCaller rejects anonymous requests on routes that need an identity.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CallerFromContext(r.Context()).Anonymous() {
			writeAuthError(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": message})
}

func CallerFromContext(ctx context.Context) Caller {
	if v, ok := ctx.Value(callerKey{}).(Caller); ok {
		return v
	}
	return Caller{}
}

func UserIDFromContext(ctx context.Context) string {
	return CallerFromContext(ctx).ID
}

func ContextWithCaller(ctx context.Context, caller Caller) context.Context {
	caller.ID = strings.TrimSpace(caller.ID)
	caller.Email = strings.TrimSpace(caller.Email)
	if caller.Anonymous() {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}
