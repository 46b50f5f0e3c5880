package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	csrfCookieName = "_csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfContextKey = "CSRFToken"
)

// CSRFConfig configures the double-submit CSRF middleware.
type CSRFConfig struct {
	Secret string
	// Secure marks the token cookie HTTPS-only.
	Secure bool
}

// CSRF protects cookie-authenticated mutations with a signed double-submit
// token.
//
// Token format: hex(nonce) + "." + base64url(HMAC-SHA256(nonce, secret))
//
// Safe methods (GET/HEAD/OPTIONS) issue a token cookie when none valid is
// present and expose it via GetCSRFToken. Unsafe methods must echo the cookie
// value in the X-CSRF-Token header; otherwise the request is rejected with 403.
func CSRF(cfg CSRFConfig) gin.HandlerFunc {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return func(c *gin.Context) {
			abortJSON(c, http.StatusInternalServerError, "csrf secret is required")
		}
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			token, err := c.Cookie(csrfCookieName)
			if err != nil || !validToken(token, secret) {
				token, err = generateToken(secret)
				if err != nil {
					abortJSON(c, http.StatusInternalServerError, "failed to generate CSRF token")
					return
				}
				setCSRFCookie(c, token, cfg.Secure)
			}
			c.Set(csrfContextKey, token)
			c.Next()

		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			cookieToken, err := c.Cookie(csrfCookieName)
			requestToken := c.GetHeader(csrfHeaderName)
			if err != nil || cookieToken == "" || requestToken == "" {
				abortJSON(c, http.StatusForbidden, "CSRF token missing")
				return
			}
			if !validToken(cookieToken, secret) || !tokensMatch(cookieToken, requestToken) {
				abortJSON(c, http.StatusForbidden, "CSRF token invalid")
				return
			}
			c.Set(csrfContextKey, cookieToken)
			c.Next()

		default:
			c.Next()
		}
	}
}

// GetCSRFToken returns the token the CSRF middleware stored for this request.
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(csrfContextKey)
}

func generateToken(secret string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	nonceHex := hex.EncodeToString(nonce)
	return nonceHex + "." + signNonce(nonceHex, secret), nil
}

func signNonce(nonce, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// validToken checks the token shape and its HMAC signature.
func validToken(token, secret string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(signNonce(nonce, secret))) == 1
}

func tokensMatch(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// setCSRFCookie stores the token in a script-readable cookie so the front end
// can copy it into the request header.
func setCSRFCookie(c *gin.Context, token string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    nil,
	})
}
