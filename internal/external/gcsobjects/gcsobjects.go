// Package gcsobjects is a thin net/http adapter over the Google Cloud
// Storage JSON API for seller PKCS#12 certificates. No GCS SDK dependency
// appears anywhere in the retrieved corpus (see DESIGN.md), so this talks
// directly to the documented REST surface instead of importing one.
package gcsobjects

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/b2pix/engine/internal/apperr"
)

// Client uploads and downloads objects in a single GCS bucket using a
// static bearer token (the caller is responsible for refreshing it; this
// adapter does not own OAuth token exchange).
type Client struct {
	bucket      string
	accessToken string
	httpClient  *http.Client
}

func New(bucket, accessToken string) *Client {
	return &Client{bucket: bucket, accessToken: accessToken, httpClient: &http.Client{}}
}

func (c *Client) objectURL(objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/upload/storage/v1/b/%s/o?uploadType=media&name=%s",
		c.bucket, url.QueryEscape(objectName))
}

func (c *Client) downloadURL(objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/storage/v1/b/%s/o/%s?alt=media",
		c.bucket, url.QueryEscape(objectName))
}

func (c *Client) Upload(ctx context.Context, objectURI string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(objectURI), bytes.NewReader(data))
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "build gcs upload request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ExternalRetryable, err, "upload %s to gcs", objectURI)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return apperr.New(apperr.ExternalRetryable, "gcs upload %s returned %d", objectURI, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return apperr.New(apperr.ExternalTerminal, "gcs upload %s returned %d", objectURI, resp.StatusCode)
	}
	return nil
}

func (c *Client) Download(ctx context.Context, objectURI string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.downloadURL(objectURI), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "build gcs download request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "download %s from gcs", objectURI)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.New(apperr.NotFound, "gcs object %s not found", objectURI)
	}
	if resp.StatusCode >= 500 {
		return nil, apperr.New(apperr.ExternalRetryable, "gcs download %s returned %d", objectURI, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.ExternalTerminal, "gcs download %s returned %d", objectURI, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalRetryable, err, "read gcs object %s", objectURI)
	}
	return data, nil
}

