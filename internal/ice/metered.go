package ice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/redis/go-redis/v9"
)

const (
	meteredCacheKey = "ice:metered"
	meteredCacheTTL = 10 * time.Minute
)

// Metered fetches hosted TURN credentials from the Metered REST API and
// caches them in Redis so every instance shares one lookup.
type Metered struct {
	endpoint string
	client   *http.Client
	redis    *redis.Client
}

func NewMetered(app, apiKey string, rdb *redis.Client) *Metered {
	endpoint := fmt.Sprintf("https://%s.metered.live/api/v1/turn/credentials?apiKey=%s",
		url.PathEscape(app), url.QueryEscape(apiKey))
	return &Metered{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		redis:    rdb,
	}
}

func (m *Metered) Servers(ctx context.Context) ([]webrtc.ICEServer, error) {
	if m.redis != nil {
		cached, err := m.redis.Get(ctx, meteredCacheKey).Bytes()
		if err == nil {
			if servers, err := decodeServers(cached); err == nil && len(servers) > 0 {
				return servers, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("read metered cache: %w", err)
		}
	}

	body, err := m.fetch(ctx)
	if err != nil {
		return nil, err
	}
	servers, err := decodeServers(body)
	if err != nil {
		return nil, fmt.Errorf("decode metered response: %w", err)
	}
	if len(servers) == 0 {
		return nil, errors.New("metered returned no ice servers")
	}

	if m.redis != nil {
		_ = m.redis.Set(ctx, meteredCacheKey, body, meteredCacheTTL).Err()
	}
	return servers, nil
}

func (m *Metered) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metered request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metered status %d", resp.StatusCode)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("metered response is not an array: %w", err)
	}
	return body, nil
}
