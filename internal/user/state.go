package user

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	stateCookieName = "oauth_state"
	stateMaxAge     = 10 * time.Minute
)

var ErrInvalidState = errors.New("invalid oauth state")

// StateSigner protects the OAuth round trip with an HMAC-signed state value
// mirrored into a short-lived cookie.
type StateSigner struct {
	hmacKey []byte
	secure  bool
	domain  string
}

func NewStateSigner(hmacKey []byte, secure bool, domain string) *StateSigner {
	return &StateSigner{
		hmacKey: hmacKey,
		secure:  secure,
		domain:  domain,
	}
}

func (s *StateSigner) SignValue(value string) string {
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write([]byte(value))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(value)) + "." + sig
}

func (s *StateSigner) VerifyValue(signed string) (string, error) {
	parts := strings.SplitN(signed, ".", 2)
	if len(parts) != 2 {
		return "", ErrInvalidState
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidState
	}

	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write(payload)
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return "", ErrInvalidState
	}
	return string(payload), nil
}

// Issue creates a state value carrying the post-login redirect and stores it
// in the state cookie.
func (s *StateSigner) Issue(c echo.Context, redirectURI string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}

	state := s.SignValue(base64.RawURLEncoding.EncodeToString(b) + "|" + redirectURI)
	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Domain:   s.domain,
		MaxAge:   int(stateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

// Consume checks the state query value against the cookie, clears the
// cookie, and returns the embedded redirect.
func (s *StateSigner) Consume(c echo.Context, state string) (string, error) {
	cookie, err := c.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrInvalidState
	}

	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	if !hmac.Equal([]byte(cookie.Value), []byte(state)) {
		return "", ErrInvalidState
	}

	payload, err := s.VerifyValue(state)
	if err != nil {
		return "", err
	}

	parts := strings.SplitN(payload, "|", 2)
	if len(parts) < 2 {
		return "", nil
	}
	return parts[1], nil
}
