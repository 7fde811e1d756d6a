package results

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client consulta o provedor de odds/placares (contrato do The Odds API v4).
// Respostas passam por um cache Redis de TTL curto para não estourar a cota
// quando vários legs do mesmo esporte são liquidados no mesmo sweep.
type Client struct {
	log     *zap.Logger
	http    *http.Client
	baseURL string
	apiKey  string
	rdb     *redis.Client
	ttl     time.Duration
}

func NewClient(log *zap.Logger, baseURL, apiKey string, rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{
		log:     log,
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// CompletedEvents retorna os eventos encerrados de um esporte na janela de dias
func (c *Client) CompletedEvents(ctx context.Context, sportKey string, windowDays int) ([]Event, error) {
	cacheKey := fmt.Sprintf("scores:%s:%d", sportKey, windowDays)
	path := fmt.Sprintf("/sports/%s/scores", url.PathEscape(sportKey))
	params := url.Values{
		"daysFrom":   {fmt.Sprint(windowDays)},
		"dateFormat": {"iso"},
	}

	var events []Event
	if err := c.fetch(ctx, path, params, cacheKey, &events); err != nil {
		return nil, err
	}

	completed := events[:0]
	for _, e := range events {
		if e.Completed {
			completed = append(completed, e)
		}
	}
	return completed, nil
}

// EventOdds retorna as odds ao vivo de um evento (usado no resgate antecipado)
func (c *Client) EventOdds(ctx context.Context, sportKey, eventID, market string) (*EventOdds, error) {
	cacheKey := fmt.Sprintf("eventOdds:%s:%s:%s", sportKey, eventID, market)
	path := fmt.Sprintf("/sports/%s/events/%s/odds", url.PathEscape(sportKey), url.PathEscape(eventID))
	params := url.Values{
		"regions":    {"us"},
		"markets":    {market},
		"oddsFormat": {"decimal"},
		"dateFormat": {"iso"},
	}

	var odds EventOdds
	if err := c.fetch(ctx, path, params, cacheKey, &odds); err != nil {
		return nil, err
	}
	return &odds, nil
}

// fetch resolve pelo cache e só bate no provedor em cache miss
func (c *Client) fetch(ctx context.Context, path string, params url.Values, cacheKey string, out any) error {
	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, cacheKey).Bytes(); err == nil {
			if jerr := json.Unmarshal(cached, out); jerr == nil {
				return nil
			}
			// cache corrompido: segue para o provedor
		}
	}

	params.Set("apiKey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("odds provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("odds provider http %s", resp.Status)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return err
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, cacheKey, body, c.ttl).Err(); err != nil {
			c.log.Warn("results cache set failed", zap.Error(err))
		}
	}
	return nil
}
