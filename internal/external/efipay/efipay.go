// Package efipay is a thin net/http JSON adapter for the EFI Pay bank
// client, breaker-wrapped the same way internal/external/boltclient is.
package efipay

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

// Client is a breaker-wrapped external.BankClient against the EFI Pay
// PIX API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func New(baseURL string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "efipay-bank-client",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}, breaker: cb}
}

func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
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
			return nil, apperr.Wrap(apperr.Internal, err, "build bank client request")
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apperr.Wrap(apperr.ExternalRetryable, err, "call bank client")
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, apperr.Wrap(apperr.ExternalRetryable, err, "read bank client response")
		}
		if resp.StatusCode >= 500 {
			return nil, apperr.New(apperr.ExternalRetryable, "bank client %s returned %d: %s", path, resp.StatusCode, data)
		}
		if resp.StatusCode >= 400 {
			return nil, apperr.New(apperr.ExternalTerminal, "bank client %s returned %d: %s", path, resp.StatusCode, data)
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return nil, apperr.Wrap(apperr.ExternalRetryable, err, "decode bank client response")
			}
		}
		return nil, nil
	})
	if err != nil {
		if _, ok := err.(*gobreaker.CircuitBreakerError); ok {
			return apperr.Wrap(apperr.ExternalRetryable, err, "bank client circuit open")
		}
		return err
	}
	return nil
}

// Authenticate exchanges clientID/clientSecret and a PKCS#12 client
// certificate for an access token scoped to gn.pix.evp.read,
// gn.pix.evp.write, pix.read, per spec.md §6.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string, p12Cert []byte) (external.BankAuth, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	payload := map[string]string{
		"grant_type": "client_credentials",
		"scope":      "gn.pix.evp.read gn.pix.evp.write pix.read",
	}
	headers := map[string]string{
		"X-Client-Id":     clientID,
		"X-Client-Secret": clientSecret,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/oauth/token", headers, payload, &resp); err != nil {
		return external.BankAuth{}, err
	}
	return external.BankAuth{AccessToken: resp.AccessToken, Scope: resp.Scope, TTLSeconds: resp.ExpiresIn}, nil
}

func (c *Client) GetOrCreateRandomPixKey(ctx context.Context, accessToken string) (string, error) {
	var resp struct {
		Key string `json:"chave"`
	}
	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/gn/evp", headers, map[string]string{}, &resp); err != nil {
		return "", err
	}
	return resp.Key, nil
}

func (c *Client) QueryPix(ctx context.Context, accessToken string, startISO, endISO string) ([]external.PixReceipt, error) {
	var resp struct {
		Pix []struct {
			EndToEndID string `json:"endToEndId"`
			Valor      string `json:"valor"`
			Horario    string `json:"horario"`
		} `json:"pix"`
	}
	path := fmt.Sprintf("/v2/pix?inicio=%s&fim=%s", startISO, endISO)
	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	if err := c.doJSON(ctx, http.MethodGet, path, headers, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]external.PixReceipt, 0, len(resp.Pix))
	for _, p := range resp.Pix {
		out = append(out, external.PixReceipt{EndToEndID: p.EndToEndID, Valor: p.Valor, Horario: p.Horario})
	}
	return out, nil
}

var _ external.BankClient = (*Client)(nil)
