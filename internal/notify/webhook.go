package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethpandaops/apiwatch/internal/report"
)

const (
	webhookTimeout   = 15 * time.Second
	maxErrorBodySize = 512
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: webhookTimeout}
}

// postJSON sends payload to url and treats any non-2xx status as an error.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)) //nolint:err113 // Include status for debugging
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// rateLabel renders a success rate with a percent sign, or the marker.
func rateLabel(rate report.SuccessRate) string {
	if !rate.Defined() {
		return rate.String()
	}

	return rate.String() + "%"
}

// seconds renders milliseconds as "12.34s".
func seconds(ms int64) string {
	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

// resultTitle is the headline shared by chat channels.
func resultTitle(rec *report.Record) string {
	emoji := "✅"
	if !rec.Passed() {
		emoji = "❌"
	}

	return fmt.Sprintf("%s API Test Results - %s Success Rate", emoji, rateLabel(rec.SuccessRate))
}
