// Package web is the network collaborator: it fetches feed documents and
// media files, retrying exactly once through a configured proxy URL
// template when the direct request fails. The storage core never sees the
// retry, only final bytes or a final error.
package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// proxyPlaceholder is substituted with the target URL in the proxy
// template, e.g. "https://proxy.example/fetch?url=$url$".
const proxyPlaceholder = "$url$"

// ProgressFunc reports download progress. total is -1 when the server does
// not announce a content length.
type ProgressFunc func(loaded, total int64)

// Client fetches documents and media over HTTP.
type Client struct {
	httpClient   *http.Client
	proxyPattern string
	logger       *slog.Logger
}

// NewClient creates a web client. proxyPattern may be empty, in which case
// failed requests are not retried.
func NewClient(proxyPattern string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		proxyPattern: proxyPattern,
		logger:       logger,
	}
}

// FetchXML downloads a feed document. On failure, and with a proxy
// template configured, the download is retried once via the proxy.
func (c *Client) FetchXML(ctx context.Context, url string) ([]byte, error) {
	data, err := c.get(ctx, url, nil)
	if err == nil {
		return data, nil
	}
	proxyURL, ok := c.proxyURL(url)
	if !ok {
		return nil, err
	}

	c.logger.Info("direct download failed, trying proxy", "url", url, "proxy", proxyURL)
	data, proxyErr := c.get(ctx, proxyURL, nil)
	if proxyErr != nil {
		return nil, fmt.Errorf("fetching %q (direct: %v): %w", url, err, proxyErr)
	}
	return data, nil
}

// FetchBytes downloads a media file, reporting progress while the body
// streams. Like FetchXML it falls back to the proxy once. A cancelled
// context aborts the read, so callers never hand a partial transfer to the
// blob store.
func (c *Client) FetchBytes(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error) {
	data, err := c.get(ctx, url, onProgress)
	if err == nil {
		return data, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	proxyURL, ok := c.proxyURL(url)
	if !ok {
		return nil, err
	}

	c.logger.Info("direct download failed, trying proxy", "url", url, "proxy", proxyURL)
	data, proxyErr := c.get(ctx, proxyURL, onProgress)
	if proxyErr != nil {
		return nil, fmt.Errorf("fetching %q (direct: %v): %w", url, err, proxyErr)
	}
	return data, nil
}

func (c *Client) proxyURL(url string) (string, bool) {
	if c.proxyPattern == "" {
		return "", false
	}
	return strings.ReplaceAll(c.proxyPattern, proxyPlaceholder, url), true
}

func (c *Client) get(ctx context.Context, url string, onProgress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %q: %s", url, resp.Status)
	}

	if onProgress == nil {
		return io.ReadAll(resp.Body)
	}
	return readWithProgress(resp.Body, resp.ContentLength, onProgress)
}

func readWithProgress(body io.Reader, total int64, onProgress ProgressFunc) ([]byte, error) {
	var data []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			onProgress(int64(len(data)), total)
		}
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
