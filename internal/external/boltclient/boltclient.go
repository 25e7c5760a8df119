// Package boltclient is a thin net/http JSON adapter for the Bolt/Stacks
// on-chain client, wrapped in a gobreaker circuit breaker so a flapping
// upstream degrades to fast ExternalRetryable failures instead of
// queuing goroutines behind a hung connection.
package boltclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/b2pix/engine/internal/apperr"
	"github.com/b2pix/engine/internal/external"
)

// Client is a breaker-wrapped external.ChainClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// New builds a Client against baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "bolt-chain-client",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
	}
}

type broadcastResponse struct {
	TxID      string `json:"txid"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Price     int64  `json:"price"`
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, apperr.Wrap(apperr.Internal, err, "encode request body")
			}
			reader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "build chain client request")
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apperr.Wrap(apperr.ExternalRetryable, err, "call chain client")
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, apperr.Wrap(apperr.ExternalRetryable, err, "read chain client response")
		}
		if resp.StatusCode >= 500 {
			return nil, apperr.New(apperr.ExternalRetryable, "chain client %s returned %d: %s", path, resp.StatusCode, data)
		}
		if resp.StatusCode >= 400 {
			return nil, apperr.New(apperr.ExternalTerminal, "chain client %s returned %d: %s", path, resp.StatusCode, data)
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode chain client response")
			}
		}
		return nil, nil
	})
	if err != nil {
		if _, ok := err.(*gobreaker.CircuitBreakerError); ok {
			return apperr.Wrap(apperr.ExternalRetryable, err, "chain client circuit open")
		}
		return err
	}
	_ = result
	return nil
}

func (c *Client) Broadcast(ctx context.Context, serializedTx []byte) (external.BroadcastResult, error) {
	var resp broadcastResponse
	if err := c.doJSON(ctx, http.MethodPost, "/broadcast", map[string]string{"tx": string(serializedTx)}, &resp); err != nil {
		return external.BroadcastResult{}, err
	}
	return external.BroadcastResult{
		TxID: resp.TxID, Sender: resp.Sender, Recipient: resp.Recipient,
		Amount: resp.Amount, Currency: resp.Currency, PriceCents: resp.Price,
	}, nil
}

func (c *Client) GetDetail(ctx context.Context, serializedTx []byte) (external.BroadcastResult, error) {
	var resp broadcastResponse
	if err := c.doJSON(ctx, http.MethodPost, "/detail", map[string]string{"tx": string(serializedTx)}, &resp); err != nil {
		return external.BroadcastResult{}, err
	}
	return external.BroadcastResult{
		Sender: resp.Sender, Recipient: resp.Recipient,
		Amount: resp.Amount, Currency: resp.Currency, PriceCents: resp.Price,
	}, nil
}

func (c *Client) ValidateAndBroadcast(ctx context.Context, serializedTx []byte, expectedRecipient string, expectedAmount int64) (string, error) {
	var resp struct {
		TxID string `json:"txid"`
	}
	payload := map[string]interface{}{
		"tx":                 string(serializedTx),
		"expected_recipient": expectedRecipient,
		"expected_amount":    expectedAmount,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/validate-and-broadcast", payload, &resp); err != nil {
		return "", err
	}
	return resp.TxID, nil
}

func (c *Client) VerifyStatus(ctx context.Context, txID string) (external.TxStatus, error) {
	var resp struct {
		Status string `json:"status"`
	}
	path := fmt.Sprintf("/status/%s", txID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return external.TxUnknown, err
	}
	return external.TxStatus(resp.Status), nil
}

func (c *Client) Deposit(ctx context.Context, serializedTx []byte, receiver string) (external.DepositResult, error) {
	var resp struct {
		TxID   string `json:"txid"`
		Amount int64  `json:"amount"`
	}
	payload := map[string]string{"tx": string(serializedTx), "receiver": receiver}
	if err := c.doJSON(ctx, http.MethodPost, "/deposit", payload, &resp); err != nil {
		return external.DepositResult{}, err
	}
	return external.DepositResult{TxID: resp.TxID, Amount: resp.Amount}, nil
}

var _ external.ChainClient = (*Client)(nil)
