package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
)

const (
	// CSRFCookieName is the name of the cookie holding the token hash
	CSRFCookieName = "_csrf"

	// CSRFHeaderName is the header clients echo the plaintext token in
	CSRFHeaderName = "X-CSRF-Token"

	// CSRFTokenBytes is the number of random bytes for CSRF tokens
	CSRFTokenBytes = 32

	// CSRFTokenTTLSeconds is the lifetime of an issued token (24 hours)
	CSRFTokenTTLSeconds = 24 * 60 * 60
)

// IssueCSRFToken generates a new anti-forgery token.
// The plaintext is delivered to the client and never stored; only its
// SHA-256 hex digest goes into the cookie. Validation recomputes the
// digest of whatever the client sends back.
func IssueCSRFToken() (plain, hash string, err error) {
	bytes := make([]byte, CSRFTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plain = base64.RawURLEncoding.EncodeToString(bytes)
	return plain, HashCSRFToken(plain), nil
}

// HashCSRFToken computes the hex-encoded SHA-256 digest of a token
func HashCSRFToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateCSRFRequest checks a mutating request's supplied token against
// the stored hash. Read-only methods bypass validation entirely.
func ValidateCSRFRequest(method, suppliedToken, storedHash string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}

	if suppliedToken == "" || storedHash == "" {
		return false
	}

	return HashCSRFToken(suppliedToken) == storedHash
}

// SetCSRFCookie stores the token hash in a cookie keyed to the browser.
// Not HttpOnly by necessity of the double-submit pattern, but the cookie
// only ever holds the one-way hash, never the token itself.
func SetCSRFCookie(w http.ResponseWriter, hash string, isProduction bool) {
	cookie := &http.Cookie{
		Name:     CSRFCookieName,
		Value:    hash,
		Path:     "/",
		MaxAge:   CSRFTokenTTLSeconds,
		HttpOnly: false,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
}

// GetCSRFCookie reads the stored token hash from the cookie
func GetCSRFCookie(r *http.Request) string {
	cookie, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SuppliedCSRFToken extracts the plaintext token a client sent with a
// mutating request: the X-CSRF-Token header first, then the form field.
func SuppliedCSRFToken(r *http.Request) string {
	if token := r.Header.Get(CSRFHeaderName); token != "" {
		return token
	}
	return r.FormValue(CSRFCookieName)
}

// ValidateCSRF validates a request using the hashed double-submit pattern
func ValidateCSRF(r *http.Request) error {
	storedHash := GetCSRFCookie(r)
	if storedHash == "" {
		return fmt.Errorf("missing CSRF cookie")
	}

	supplied := SuppliedCSRFToken(r)
	if supplied == "" {
		return fmt.Errorf("missing CSRF token in request")
	}

	if !ValidateCSRFRequest(r.Method, supplied, storedHash) {
		return fmt.Errorf("CSRF token mismatch")
	}

	return nil
}

// IssueCSRF generates a token, sets the hash cookie, and exposes the
// plaintext in the response header for the client to echo back.
func IssueCSRF(w http.ResponseWriter, isProduction bool) (string, error) {
	plain, hash, err := IssueCSRFToken()
	if err != nil {
		return "", err
	}

	SetCSRFCookie(w, hash, isProduction)
	w.Header().Set(CSRFHeaderName, plain)

	return plain, nil
}
