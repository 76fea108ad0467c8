package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/safezone/internal/policy"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
	userAgent      = "safezone-alert/1"
)

var (
	httpClient = &http.Client{}
	// retryBackoff is multiplied by the attempt number. Tests shorten it.
	retryBackoff = time.Second
)

// Send posts event to cfg.URL in cfg.Format. 5xx responses and transport
// errors are retried with linear backoff; 4xx responses are final.
func Send(cfg policy.AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * retryBackoff)
		}

		status, err := post(cfg, body)
		switch {
		case err != nil:
			// Network error: retry.
			lastErr = err
		case status >= 200 && status < 300:
			return nil
		case status >= 400 && status < 500:
			// Client error: the payload or URL is wrong, retrying will not help.
			return fmt.Errorf("webhook rejected: HTTP %d", status)
		default:
			// 5xx: retry.
			lastErr = fmt.Errorf("webhook server error: HTTP %d", status)
		}
	}

	return fmt.Errorf("webhook %s failed after %d attempts: %w", event.ID, maxAttempts, lastErr)
}

// post performs one delivery attempt and returns the response status.
func post(cfg policy.AlertConfig, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	// Configured headers win, including Content-Type.
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}
