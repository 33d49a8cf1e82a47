// Package inbox provides ports.Inbox adapters. HTTP polls an
// operator-configured mail-parsing service rather than speaking IMAP
// directly, keeping the core's only inbound dependency an HTTP contract
// it can stub in tests.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kazimov/jobtrail/ports"
)

type HTTP struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTP{baseURL: baseURL, httpClient: client}
}

type inboundWire struct {
	ExternalID    string    `json:"external_id"`
	ReceivedAt    time.Time `json:"received_at"`
	SenderAddress string    `json:"sender_address"`
	Subject       string    `json:"subject"`
	PlainBody     string    `json:"plain_body"`
	HTMLBody      string    `json:"html_body"`
}

// Poll implements ports.Inbox: messages newer than watermark, within
// lookback, in receive-time order (§6).
func (h *HTTP) Poll(ctx context.Context, watermark string, lookback time.Duration) ([]ports.InboundMessage, error) {
	q := url.Values{}
	if watermark != "" {
		q.Set("watermark", watermark)
	}
	q.Set("lookback_seconds", strconv.Itoa(int(lookback.Seconds())))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build inbox poll request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inbox poll request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inbox poll status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read inbox poll response: %w", err)
	}
	var wire []inboundWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode inbox poll response: %w", err)
	}

	out := make([]ports.InboundMessage, 0, len(wire))
	for _, w := range wire {
		out = append(out, ports.InboundMessage{
			ExternalID:    w.ExternalID,
			ReceivedAt:    w.ReceivedAt,
			SenderAddress: w.SenderAddress,
			Subject:       w.Subject,
			PlainBody:     w.PlainBody,
			HTMLBody:      w.HTMLBody,
		})
	}
	return out, nil
}
