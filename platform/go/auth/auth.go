package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/idtoken"

	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
)

type ctxKey string

const (
	ctxCaller ctxKey = "PALMYRA_PUSH_CALLER"
)

// Modes accepted by Config.Mode.
const (
	ModeNone     = "none"
	ModeOIDC     = "oidc"
	ModeUnsigned = "unsigned"
)

// Config selects how push and event deliveries are authenticated.
type Config struct {
	Mode     string `env:"PUSH_AUTH" envDefault:"none"` // none | oidc | unsigned
	Audience string `env:"PUSH_AUDIENCE"`
	// AllowedEmails restricts the calling service accounts; empty allows any.
	AllowedEmails []string `env:"PUSH_ALLOWED_SERVICE_ACCOUNTS" envSeparator:","`
}

// Caller is the identity behind a push or event delivery.
type Caller struct {
	Subject       string
	Email         string
	EmailVerified bool
	Issuer        string
}

func CallerFromContext(ctx context.Context) (*Caller, bool) {
	v := ctx.Value(ctxCaller)
	if v == nil {
		return nil, false
	}
	c, ok := v.(*Caller)
	return c, ok
}

// VerifyFunc validates the incoming JWT and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]interface{}, error)

// Middleware builds the authentication middleware for cfg. ModeNone returns
// a pass-through.
func (c Config) Middleware(ctx context.Context) (func(http.Handler) http.Handler, error) {
	switch c.Mode {
	case "", ModeNone:
		return func(next http.Handler) http.Handler { return next }, nil
	case ModeOIDC:
		if c.Audience == "" {
			return nil, errors.New("PUSH_AUDIENCE is required when PUSH_AUTH=oidc")
		}
		verify, err := GoogleIDTokenVerifier(ctx, c.Audience)
		if err != nil {
			return nil, err
		}
		return Push(verify, c.AllowedEmails), nil
	case ModeUnsigned:
		return Push(UnsignedTokenVerifier(c.Audience), c.AllowedEmails), nil
	default:
		return nil, fmt.Errorf("invalid PUSH_AUTH %q (use none, oidc or unsigned)", c.Mode)
	}
}

// Push requires a verified bearer token on every request and, when allowed
// is non-empty, a caller email from that list.
func Push(verify VerifyFunc, allowed []string) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.Push: verify func must not be nil")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := ExtractJWTToken(r)
			if token == "" || !found {
				w.Header().Set("WWW-Authenticate", `Bearer realm="push"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				if logger, ok := platformlogging.FromContext(r.Context()); ok {
					logger.Warn("push token rejected", zap.Error(err))
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="push", error="invalid_token", error_description="token verification failed"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			caller, err := CallerFromClaims(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="push", error="invalid_token", error_description="invalid claims"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if len(allowed) > 0 && !slices.ContainsFunc(allowed, func(e string) bool { return strings.EqualFold(e, caller.Email) }) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ctxCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromClaims converts standard OIDC claims into a Caller.
func CallerFromClaims(claims map[string]interface{}) (*Caller, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	caller := &Caller{
		Subject:       extractStringClaim(claims, "sub"),
		Email:         extractStringClaim(claims, "email"),
		EmailVerified: extractBoolClaim(claims, "email_verified"),
		Issuer:        extractStringClaim(claims, "iss"),
	}
	if caller.Subject == "" {
		return nil, errors.New("missing sub claim")
	}
	return caller, nil
}

func extractBoolClaim(claims map[string]interface{}, key string) bool {
	if v, ok := claims[key]; ok {
		if boolVal, valid := v.(bool); valid {
			return boolVal
		}
	}
	return false
}

func extractStringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key]; ok {
		if strVal, valid := v.(string); valid {
			return strVal
		}
	}
	return ""
}

// GoogleIDTokenVerifier returns a VerifyFunc that validates Google-signed
// OIDC tokens, as attached by Pub/Sub push and Eventarc, for audience.
func GoogleIDTokenVerifier(ctx context.Context, audience string) (VerifyFunc, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("init id token validator: %w", err)
	}

	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		payload, err := validator.Validate(ctx, token, audience)
		if err != nil {
			return nil, err
		}

		claims := make(map[string]interface{}, len(payload.Claims)+3)
		for k, v := range payload.Claims {
			claims[k] = v
		}
		claims["sub"] = payload.Subject
		claims["iss"] = payload.Issuer
		claims["aud"] = payload.Audience
		return claims, nil
	}, nil
}

// UnsignedTokenVerifier returns a VerifyFunc that decodes unsigned JWT
// payloads without validation, checking only the audience when one is set.
// It is meant for emulators and local runs.
func UnsignedTokenVerifier(audience string) VerifyFunc {
	return func(ctx context.Context, token string) (map[string]interface{}, error) {
		claims, err := parseUnsignedJWTClaims(token)
		if err != nil {
			return nil, err
		}
		if audience != "" && extractStringClaim(claims, "aud") != audience {
			return nil, errors.New("audience mismatch")
		}
		return claims, nil
	}
}
