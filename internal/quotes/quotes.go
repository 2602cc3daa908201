package quotes

import (
	"context"
	"net/url"
	"strings"

	"github.com/marketdeck/feedcore/internal/model"
)

// quotesResponse is the wire shape of GET /v1/quotes.
type quotesResponse struct {
	Quotes []quoteWire `json:"quotes"`
}

type quoteWire struct {
	Token     string  `json:"token"`
	LTP       float64 `json:"ltp"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	OI        int64   `json:"oi"`
	Volume    int64   `json:"volume"`
	Timestamp int64   `json:"ts"`
}

// GetQuotes fetches the latest quote for each token in one batched
// request. Entries with unparseable tokens or missing timestamps are
// dropped; the rest come back as ticks ready for the store's
// last-timestamp-wins merge.
func (c *Client) GetQuotes(ctx context.Context, tokens []model.Token) ([]model.Tick, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	raw := make([]string, len(tokens))
	for i, token := range tokens {
		raw[i] = string(token)
	}

	query := url.Values{}
	query.Set("tokens", strings.Join(raw, ","))

	var resp quotesResponse
	if err := c.get(ctx, "/v1/quotes", query, &resp); err != nil {
		return nil, err
	}

	ticks := make([]model.Tick, 0, len(resp.Quotes))
	for _, q := range resp.Quotes {
		token, err := model.NormalizeToken(q.Token)
		if err != nil || q.Timestamp <= 0 {
			c.logger.Debug("dropping malformed quote", "token", q.Token)
			continue
		}
		ticks = append(ticks, model.Tick{
			Token:     token,
			LTP:       q.LTP,
			Change:    q.Change,
			ChangePct: q.ChangePct,
			OI:        q.OI,
			Volume:    q.Volume,
			Timestamp: q.Timestamp,
		})
	}

	return ticks, nil
}
