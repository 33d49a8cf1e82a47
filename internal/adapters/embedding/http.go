package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kazimov/jobtrail/domain"
)

// HTTP calls an operator-configured embedding service. Retry/backoff
// shape is grounded on woragis-resume-generator's ai-client.go
// doPostWithRetry: a small fixed number of attempts with capped
// exponential backoff, aborting on context cancellation.
type HTTP struct {
	baseURL    string
	version    string
	dims       int
	httpClient *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// NewHTTP builds an HTTP embedding adapter. modelVersion and dims are
// supplied by the operator because the service's own version string is
// not guaranteed to match the core's stored dimensionality assumptions
// until the first successful call confirms it.
func NewHTTP(baseURL, modelVersion string, dims int, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{
		baseURL:     baseURL,
		version:     modelVersion,
		dims:        dims,
		httpClient:  client,
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
	}
}

func (h *HTTP) Dimensions() int      { return h.dims }
func (h *HTTP) ModelVersion() string { return h.version }

type embedRequest struct {
	Input string `json:"input"`
}

type embedResponse struct {
	Vector []float32 `json:"vector"`
}

// Embed carries a per-call deadline and retries transient failures with
// capped exponential backoff (§5: "every external call ... carries a
// deadline; on timeout the call is aborted, the operation fails with a
// retryable-error marker").
func (h *HTTP) Embed(ctx context.Context, text string) (domain.Vector, error) {
	var lastErr error
	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := h.baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &domain.Transient{Op: "embed", Err: ctx.Err()}
			}
		}
		vec, err := h.doEmbed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if perm, ok := err.(*domain.Permanent); ok {
			return nil, perm
		}
	}
	return nil, &domain.Transient{Op: "embed", Err: lastErr}
}

func (h *HTTP) doEmbed(ctx context.Context, text string) (domain.Vector, error) {
	body, err := json.Marshal(embedRequest{Input: text})
	if err != nil {
		return nil, &domain.Permanent{Op: "embed", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.Permanent{Op: "embed", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &domain.Permanent{Op: "embed", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("embed service status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.Permanent{Op: "embed", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}
	var out embedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.Permanent{Op: "embed", Err: err}
	}
	if len(out.Vector) != h.dims {
		return nil, &domain.Permanent{Op: "embed", Err: domain.ErrEmbeddingDimensionMismatch}
	}
	return domain.Vector(out.Vector), nil
}
