package producer

import (
	"context"
	"strings"
	"time"

	"chart-advisor/internal/logging"
	"chart-advisor/internal/reconciler"
)

// Pair is one watched ticker/timeframe combination.
type Pair struct {
	Ticker    string
	Timeframe string
}

// ParsePairs parses "TICKER:TIMEFRAME" entries, skipping malformed ones.
func ParsePairs(raw []string) []Pair {
	pairs := make([]Pair, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		pairs = append(pairs, Pair{Ticker: parts[0], Timeframe: parts[1]})
	}
	return pairs
}

// Poller periodically requests a fresh analysis for each watched pair and
// feeds it through the reconciler.
type Poller struct {
	client   *Client
	rec      *reconciler.Reconciler
	pairs    []Pair
	interval time.Duration
	logger   *logging.Logger
}

// NewPoller creates a poller. A non-positive interval defaults to 15m.
func NewPoller(client *Client, rec *reconciler.Reconciler, pairs []Pair, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Poller{
		client:   client,
		rec:      rec,
		pairs:    pairs,
		interval: interval,
		logger:   logging.WithComponent("producer_poller"),
	}
}

// Run polls until the context is canceled. Per-pair failures are logged
// and never stop the loop.
func (p *Poller) Run(ctx context.Context) {
	if len(p.pairs) == 0 {
		p.logger.Warn("no watch pairs configured, poller idle")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	for _, pair := range p.pairs {
		ar, err := p.client.RequestAnalysis(ctx, pair.Ticker, pair.Timeframe)
		if err != nil {
			p.logger.WithError(err).Warn("analysis request failed",
				"ticker", pair.Ticker, "timeframe", pair.Timeframe)
			continue
		}

		result := p.rec.Reconcile(ctx, pair.Ticker, pair.Timeframe, ar)
		if !result.Success {
			p.logger.Warn("reconcile cycle reported failure",
				"ticker", pair.Ticker, "timeframe", pair.Timeframe,
				"message", result.Message)
		}
	}
}
