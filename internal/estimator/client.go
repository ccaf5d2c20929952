// internal/estimator/client.go
package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"engagement-workers/internal/common/config"
	commonhttp "engagement-workers/internal/common/http"
)

// Client calls the external wage estimator service. The service suggests an
// hourly wage for a task profile so NGOs that leave the wage blank still get
// a monetisation baseline.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *commonhttp.Client
}

// Estimate is the wage suggestion returned by the estimator.
type Estimate struct {
	HourlyWage float64 `json:"hourlyWage"`
	Currency   string  `json:"currency"`
	Confidence float64 `json:"confidence"`
}

func NewClient(cfg config.EstimatorConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: commonhttp.NewClient(config.GetDuration(cfg.Timeout)),
	}
}

// Enabled reports whether an estimator endpoint is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// SuggestWage asks the estimator for an hourly wage for the task profile.
// Callers treat errors as soft failures: task creation proceeds without a
// suggestion. A non-positive answer means no suggestion, not an error.
func (c *Client) SuggestWage(ctx context.Context, title, description, location string) (*Estimate, error) {
	url := fmt.Sprintf("%s/v1/estimates", c.baseURL)

	payload := map[string]interface{}{
		"title":       title,
		"description": description,
		"location":    location,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal estimate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var estimate Estimate
	if err := c.httpClient.DoJSON(ctx, req, &estimate); err != nil {
		return nil, fmt.Errorf("wage estimate request failed: %w", err)
	}

	if estimate.HourlyWage <= 0 {
		return nil, nil
	}

	estimate.HourlyWage = math.Round(estimate.HourlyWage*100) / 100
	return &estimate, nil
}
