package ice

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// TURNREST issues coturn compatible ephemeral credentials:
//
//	username   = <unix_expiry>:<prefix>:<user_id>
//	credential = base64(hmac_sha1(secret, username))
type TURNREST struct {
	secret []byte
	urls   []string
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewTURNREST(secret string, urls []string, prefix string, ttl time.Duration) (*TURNREST, error) {
	if secret == "" {
		return nil, errors.New("turn shared secret is required")
	}
	if len(urls) == 0 {
		return nil, errors.New("turn urls are required")
	}
	if prefix == "" {
		prefix = "consult"
	}
	if strings.Contains(prefix, ":") {
		return nil, errors.New("turn username prefix must not contain ':'")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TURNREST{secret: []byte(secret), urls: urls, prefix: prefix, ttl: ttl, now: time.Now}, nil
}

func (t *TURNREST) Server(userID string) (webrtc.ICEServer, error) {
	if userID == "" || strings.Contains(userID, ":") {
		return webrtc.ICEServer{}, fmt.Errorf("invalid turn user id %q", userID)
	}
	expiry := t.now().UTC().Add(t.ttl).Unix()
	username := fmt.Sprintf("%d:%s:%s", expiry, t.prefix, userID)

	server := webrtc.ICEServer{URLs: t.urls, Username: username}
	server.Credential = sign(t.secret, username)
	return server, nil
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
