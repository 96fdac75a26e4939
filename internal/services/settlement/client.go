package settlement

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "kudi/internal/errors"

	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type httpClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	headers map[string]string
}

func newHTTPClient(baseURL string, client *http.Client, logger *zap.Logger, headers map[string]string) *httpClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
		headers: headers,
	}
}

// do sends body as JSON and decodes the response into out. Transport errors
// and non-2xx responses become ExternalProviderError.
func (c *httpClient) do(ctx context.Context, provider, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", provider, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("provider request failed",
			zap.String("provider", provider),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return apperrors.ErrExternalProvider.WithMessage("%s unreachable", provider).Wrap(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.ErrExternalProvider.WithMessage("%s response unreadable", provider).Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("provider returned non-2xx",
			zap.String("provider", provider),
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(raw)))
		return apperrors.ErrExternalProvider.
			WithMessage("%s returned status %d", provider, resp.StatusCode).
			Wrap(fmt.Errorf("%s: %s", resp.Status, raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.ErrExternalProvider.WithMessage("%s response malformed", provider).Wrap(err)
	}
	return nil
}

// verifyHexMAC compares a hex signature against the MAC of message.
func verifyHexMAC(newHash func() hash.Hash, secret string, message []byte, provided string) bool {
	if secret == "" {
		return false
	}
	cleaned := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(provided)), "0x")
	if cleaned == "" {
		return false
	}
	got, err := hex.DecodeString(cleaned)
	if err != nil {
		return false
	}
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), got)
}

func signHex(newHash func() hash.Hash, secret string, message []byte) string {
	mac := hmac.New(newHash, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
