// Package producer is the client for the upstream analysis producer, the
// service that turns chart snapshots into position assessments. Requests
// are enriched with the cached trade context for the pair so the producer
// sees the position it previously recommended.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chart-advisor/config"
	"chart-advisor/internal/analysis"
	"chart-advisor/internal/cache"
	"chart-advisor/internal/logging"
	"chart-advisor/internal/vault"

	"github.com/go-resty/resty/v2"
)

// CredentialName is the Vault credential the client authenticates with.
const CredentialName = "analysis-producer"

// AnalysisRequest is the payload sent to the producer.
type AnalysisRequest struct {
	Ticker    string `json:"ticker"`
	Timeframe string `json:"timeframe"`
	// PreviousPosition carries the open trade the producer recommended
	// earlier, nil when the pair is flat.
	PreviousPosition *cache.TradeContext `json:"previous_position,omitempty"`
}

// Client calls the analysis producer over HTTP.
type Client struct {
	http     *resty.Client
	cfg      config.ProducerConfig
	vault    *vault.Client
	contexts *cache.TradeContextCache
	logger   *logging.Logger
}

// NewClient creates a producer client. vaultClient and contexts may be nil;
// without Vault the configured API key is used directly.
func NewClient(cfg config.ProducerConfig, vaultClient *vault.Client, contexts *cache.TradeContextCache) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	http := resty.New()
	http.SetBaseURL(cfg.BaseURL)
	http.SetTimeout(timeout)
	if cfg.RetryCount > 0 {
		http.SetRetryCount(cfg.RetryCount)
	}

	return &Client{
		http:     http,
		cfg:      cfg,
		vault:    vaultClient,
		contexts: contexts,
		logger:   logging.WithComponent("producer"),
	}
}

// RequestAnalysis asks the producer for a fresh assessment of the pair.
func (c *Client) RequestAnalysis(ctx context.Context, ticker, timeframe string) (*analysis.Result, error) {
	if !c.cfg.Enabled {
		return nil, fmt.Errorf("producer is disabled")
	}

	req := AnalysisRequest{Ticker: ticker, Timeframe: timeframe}

	// A missing context is a flat pair, not a failure.
	if c.contexts != nil {
		tc, err := c.contexts.GetTradeContext(ctx, ticker, timeframe)
		if err != nil {
			c.logger.WithError(err).Warn("trade context unavailable, requesting without it",
				"ticker", ticker, "timeframe", timeframe)
		} else {
			req.PreviousPosition = tc
		}
	}

	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/v1/analyze")
	if err != nil {
		return nil, fmt.Errorf("producer request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("producer returned status %d: %s", resp.StatusCode(), resp.String())
	}

	var result analysis.Result
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode producer response: %w", err)
	}
	if result.Ticker == "" {
		result.Ticker = ticker
	}
	if result.Timeframe == "" {
		result.Timeframe = timeframe
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	logging.ProducerContext(ticker, timeframe).Info("analysis received",
		"analysis_id", result.ID, "has_recommendation", result.Recommendation != nil)
	return &result, nil
}

// apiKey resolves the producer credential, Vault first.
func (c *Client) apiKey(ctx context.Context) (string, error) {
	if c.vault != nil {
		cred, err := c.vault.GetCredential(ctx, CredentialName)
		if err == nil && cred.APIKey != "" {
			return cred.APIKey, nil
		}
		if c.cfg.APIKey == "" {
			return "", fmt.Errorf("producer credential unavailable: %w", err)
		}
	}
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("no producer API key configured")
	}
	return c.cfg.APIKey, nil
}
