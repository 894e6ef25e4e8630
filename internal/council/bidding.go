package council

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// bidMaxTokens caps the bid response itself: a single integer.
const bidMaxTokens = 100

// CollectBids solicits one bid from every candidate concurrently under the
// short bid timeout, prices each bid at rate x tokens, sorts ascending by
// estimated cost, and selects the cheapest PanelSize bids as the panel.
// The cheapest selected agent becomes the aggregator for the run.
//
// Non-responders are excluded, not retried. Zero responders is the fatal
// empty-panel condition.
func CollectBids(ctx context.Context, gen Generator, cfg Config, query string) (*BidSheet, error) {
	received := make([]*Bid, len(cfg.Agents))
	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range cfg.Agents {
		g.Go(func() error {
			raw, err := gen.Generate(gctx, agent.Model, bidPrompt(query, len(cfg.Agents), agent.Rate), bidMaxTokens, cfg.BidTimeout)
			if err != nil {
				return nil // excluded, not retried
			}
			tokens, outcome := ParseTokenCount(raw)
			received[i] = &Bid{
				Agent:         agent,
				ClaimedTokens: tokens,
				EstimatedCost: agent.Rate * float64(tokens) / 1e6,
				Outcome:       outcome,
			}
			return nil
		})
	}
	_ = g.Wait()

	sheet := &BidSheet{}
	for _, b := range received {
		if b != nil {
			sheet.Bids = append(sheet.Bids, *b)
		}
	}
	if len(sheet.Bids) == 0 {
		return nil, fmt.Errorf("bidding: %w", ErrEmptyPanel)
	}

	sort.SliceStable(sheet.Bids, func(i, j int) bool {
		return sheet.Bids[i].EstimatedCost < sheet.Bids[j].EstimatedCost
	})

	k := min(cfg.PanelSize, len(sheet.Bids))
	for i := 0; i < k; i++ {
		sheet.Bids[i].Selected = true
		sheet.Panel = append(sheet.Panel, sheet.Bids[i].Agent)
	}

	if len(sheet.Panel) > 0 {
		sheet.Aggregator = sheet.Panel[0]
	} else {
		sheet.Aggregator = cfg.FallbackAggregator
	}
	return sheet, nil
}
