package devtoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const googleIssuer = "https://accounts.google.com"

// Params captures the claims of a Google-issued OIDC token, the kind Pub/Sub
// push and Eventarc attach to deliveries. No environment variables are read
// so the builder stays deterministic for tooling.
type Params struct {
	Audience      string        // aud; the receiving endpoint URL (required)
	Email         string        // service account email (required)
	Subject       string        // sub; defaults to Email
	EmailVerified bool          // email_verified claim
	ExpiresIn     time.Duration // relative expiry; default 1h if zero
	Issuer        string        // optional override; defaults to https://accounts.google.com
}

// BuildUnsignedIDToken returns a JWT string with alg "none" and no signature.
// It passes the push middleware only when PUSH_AUTH=unsigned.
func BuildUnsignedIDToken(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.Audience) == "" {
		return "", errors.New("audience is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = googleIssuer
	}

	subject := p.Subject
	if strings.TrimSpace(subject) == "" {
		subject = p.Email
	}

	payload := map[string]interface{}{
		"iss":            issuer,
		"aud":            p.Audience,
		"sub":            subject,
		"iat":            now.Unix(),
		"exp":            now.Add(expiresIn).Unix(),
		"email":          p.Email,
		"email_verified": p.EmailVerified,
	}

	header := map[string]interface{}{
		"alg": "none",
		"typ": "JWT",
	}

	headerSegment, err := encodeSegment(header)
	if err != nil {
		return "", err
	}

	payloadSegment, err := encodeSegment(payload)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s.%s", headerSegment, payloadSegment), nil
}

func encodeSegment(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
