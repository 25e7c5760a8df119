// Package pricefeed is the market-price quote source
// priceoracle.Oracle wraps with its cache: spec.md's Non-goals keep
// price discovery itself out of scope, but an Oracle still needs
// something to call on a cache miss. This adapter hits CoinGecko's
// public simple-price endpoint.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/b2pix/engine/internal/apperr"
)

var baseURL = "https://api.coingecko.com/api/v3/simple/price"

// coinGeckoIDs maps the engine's token symbols onto CoinGecko's coin ids.
// Unlisted tokens simply can't be quoted — Quote returns an
// ExternalTerminal error for them rather than guessing an id (priceoracle
// then wraps every quoter error as ExternalRetryable).
var coinGeckoIDs = map[string]string{
	"STX": "blockstack",
	"BTC": "bitcoin",
}

// Client is a read-only net/http adapter; unlike ChainClient/BankClient
// it isn't wrapped in a circuit breaker because priceoracle already
// isolates failures behind its own TTL cache and singleflight group —
// a flapping feed just means stale-but-served quotes, never a pile of
// blocked callers.
type Client struct {
	httpClient *http.Client
}

func New(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// Quote implements priceoracle.Quoter.
func (c *Client) Quote(ctx context.Context, token, currency string) (int64, error) {
	coinID, ok := coinGeckoIDs[strings.ToUpper(token)]
	if !ok {
		return 0, apperr.New(apperr.ExternalTerminal, "no price feed mapping for token %s", token)
	}
	vsCurrency := strings.ToLower(currency)

	url := fmt.Sprintf("%s?ids=%s&vs_currencies=%s", baseURL, coinID, vsCurrency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "build price feed request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperr.Wrap(apperr.ExternalRetryable, err, "fetch price feed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, apperr.New(apperr.ExternalRetryable, "price feed returned status %d", resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, apperr.Wrap(apperr.ExternalRetryable, err, "decode price feed response")
	}
	price, ok := body[coinID][vsCurrency]
	if !ok {
		return 0, apperr.New(apperr.ExternalRetryable, "price feed response missing %s/%s", coinID, vsCurrency)
	}
	return int64(price * 100), nil
}
