package ice

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

type serverJSON struct {
	URLs       stringOrSlice `json:"urls"`
	Username   string        `json:"username,omitempty"`
	Credential string        `json:"credential,omitempty"`
}

type stringOrSlice []string

func (s *stringOrSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseServers reads RTC_ICE_SERVERS. It accepts either a JSON array of
// RTCIceServer objects or a comma separated list of URLs. An empty value
// yields the default Google STUN server.
func ParseServers(raw string) ([]webrtc.ICEServer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []webrtc.ICEServer{{URLs: []string{DefaultSTUN}}}, nil
	}

	if strings.HasPrefix(raw, "[") {
		return decodeServers([]byte(raw))
	}

	urls := splitList(raw)
	server := webrtc.ICEServer{URLs: urls}
	if err := validateServer(server); err != nil {
		return nil, err
	}
	return []webrtc.ICEServer{server}, nil
}

func decodeServers(b []byte) ([]webrtc.ICEServer, error) {
	var servers []serverJSON
	if err := json.Unmarshal(b, &servers); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		urls := make([]string, 0, len(s.URLs))
		for _, u := range s.URLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		server := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(s.Username)}
		if strings.TrimSpace(s.Credential) != "" {
			server.Credential = s.Credential
		}
		if err := validateServer(server); err != nil {
			return nil, fmt.Errorf("ice server %d: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}
	needsCreds := false
	for _, u := range server.URLs {
		switch {
		case hasPrefixFold(u, "stun:"), hasPrefixFold(u, "stuns:"):
		case hasPrefixFold(u, "turn:"), hasPrefixFold(u, "turns:"):
			needsCreds = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", u)
		}
	}
	if needsCreds && (server.Username == "" || Credential(server) == "") {
		return errors.New("turn urls require username and credential")
	}
	return nil
}

func isTURN(server webrtc.ICEServer) bool {
	for _, u := range server.URLs {
		if hasPrefixFold(u, "turn:") || hasPrefixFold(u, "turns:") {
			return true
		}
	}
	return false
}

// stunOnly keeps the servers that carry no TURN urls.
func stunOnly(servers []webrtc.ICEServer) []webrtc.ICEServer {
	var out []webrtc.ICEServer
	for _, s := range servers {
		if !isTURN(s) {
			out = append(out, s)
		}
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Credential returns the password credential of server, or "" when unset.
func Credential(server webrtc.ICEServer) string {
	if v, ok := any(server.Credential).(string); ok {
		return v
	}
	return ""
}
