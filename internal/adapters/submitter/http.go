// Package submitter provides ports.Submitter adapters. HTTP talks to the
// residential-IP host's browser-automation agent (spec §5: "the Submitter
// ... runs on the residential-IP host; the core neither parallelises
// submissions nor issues them itself"), a separate process the core
// reaches only over the network.
package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kazimov/jobtrail/ports"
)

// HTTP posts an ApplicationPlan to an operator-configured agent endpoint
// and translates its response into a ports.SubmissionOutcome. Retry/backoff
// shape mirrors internal/adapters/embedding.HTTP.
type HTTP struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{baseURL: baseURL, httpClient: client, maxAttempts: 3, baseDelay: 500 * time.Millisecond}
}

type submitRequest struct {
	ListingID        string `json:"listing_id"`
	Archetype        string `json:"archetype"`
	VariantPath      string `json:"variant_path"`
	VariantVersionID string `json:"variant_version_id"`
	ProfileState     string `json:"profile_state"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Submit implements ports.Submitter. A transient failure (network error,
// 5xx, timeout) is retried up to maxAttempts; a permanent failure
// (anything else the agent reports) is returned on the first attempt
// without retry; the Coordinator records every attempt and counts it
// toward the batch only on success (§4.4).
func (h *HTTP) Submit(ctx context.Context, plan ports.ApplicationPlan) ports.SubmissionOutcome {
	var lastErr error
	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := h.baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ports.SubmissionOutcome{Success: false, Transient: true, Err: ctx.Err()}
			}
		}
		outcome, transient, err := h.doSubmit(ctx, plan)
		if err == nil {
			return outcome
		}
		lastErr = err
		if !transient {
			return ports.SubmissionOutcome{Success: false, Transient: false, Err: err}
		}
	}
	return ports.SubmissionOutcome{Success: false, Transient: true, Err: lastErr}
}

func (h *HTTP) doSubmit(ctx context.Context, plan ports.ApplicationPlan) (ports.SubmissionOutcome, bool, error) {
	body, err := json.Marshal(submitRequest{
		ListingID:        plan.ListingID,
		Archetype:        string(plan.Archetype),
		VariantPath:      plan.VariantPath,
		VariantVersionID: plan.VariantVersionID,
		ProfileState:     string(plan.ProfileState),
	})
	if err != nil {
		return ports.SubmissionOutcome{}, false, fmt.Errorf("marshal submit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/submit", bytes.NewReader(body))
	if err != nil {
		return ports.SubmissionOutcome{}, false, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return ports.SubmissionOutcome{}, true, fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return ports.SubmissionOutcome{}, true, fmt.Errorf("submit agent status %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ports.SubmissionOutcome{}, false, fmt.Errorf("submit agent auth failure: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.SubmissionOutcome{}, true, fmt.Errorf("read submit response: %w", err)
	}
	var out submitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return ports.SubmissionOutcome{}, false, fmt.Errorf("decode submit response: %w", err)
	}
	if !out.Success {
		return ports.SubmissionOutcome{Success: false, Err: fmt.Errorf("%s", out.Error)}, false, nil
	}
	return ports.SubmissionOutcome{Success: true}, false, nil
}
