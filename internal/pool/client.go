// Package pool maintains the candidate symbol pool traders may open
// positions in. The pool comes from a remote ranking API when one is
// configured, with a static list as fallback so traders keep running
// through pool API outages.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/logger"
)

type Client struct {
	http    *resty.Client
	static  []string
	refresh time.Duration

	mu        sync.RWMutex
	symbols   []string
	symbolSet map[string]bool
	fetchedAt time.Time
}

var _ interfaces.PoolProvider = (*Client)(nil)

// New builds a pool client. apiURL may be empty, in which case the
// static list is the pool.
func New(apiURL string, static []string, refresh time.Duration) *Client {
	c := &Client{
		static:  normalize(static),
		refresh: refresh,
	}
	if apiURL != "" {
		c.http = resty.New().
			SetBaseURL(strings.TrimRight(apiURL, "/")).
			SetTimeout(30 * time.Second).
			SetRetryCount(2)
	}
	c.set(c.static)
	c.fetchedAt = time.Time{} // force a refresh on first use
	return c
}

// Symbols returns the current pool, refreshing from the remote API when
// the cache is stale.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	fresh := time.Since(c.fetchedAt) < c.refresh
	cached := c.symbols
	c.mu.RUnlock()

	if fresh || c.http == nil {
		if c.http == nil {
			return c.static, nil
		}
		return cached, nil
	}

	symbols, err := c.fetchRemote(ctx)
	if err != nil {
		logger.Warn(ctx, "Pool API unavailable, using last known pool",
			"error", err.Error(),
			"symbols", len(cached),
		)
		// Stretch the cache so we do not hammer a failing API.
		c.mu.Lock()
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		if len(cached) > 0 {
			return cached, nil
		}
		return c.static, nil
	}

	c.set(symbols)
	return symbols, nil
}

// Contains reports whether symbol is in the current pool. It never
// blocks on a refresh.
func (c *Client) Contains(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.symbolSet[strings.ToUpper(symbol)]
}

// poolResponse covers the two shapes the ranking API is known to return.
type poolResponse struct {
	Symbols []string `json:"symbols"`
	Data    []struct {
		Symbol string `json:"symbol"`
	} `json:"data"`
}

func (c *Client) fetchRemote(ctx context.Context) ([]string, error) {
	resp, err := c.http.R().SetContext(ctx).Get("")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pool api http %d", resp.StatusCode())
	}

	body := resp.Body()
	var pr poolResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		// Plain array fallback.
		var arr []string
		if err2 := json.Unmarshal(body, &arr); err2 != nil {
			return nil, fmt.Errorf("decode pool response: %w", err)
		}
		pr.Symbols = arr
	}

	symbols := pr.Symbols
	if len(symbols) == 0 {
		for _, d := range pr.Data {
			symbols = append(symbols, d.Symbol)
		}
	}
	symbols = normalize(symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("pool api returned no symbols")
	}
	return symbols, nil
}

func (c *Client) set(symbols []string) {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	c.mu.Lock()
	c.symbols = symbols
	c.symbolSet = set
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

func normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		// Bare coin names from the ranking API map to USDT perpetuals.
		if !strings.HasSuffix(s, "USDT") {
			s += "USDT"
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
