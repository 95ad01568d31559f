package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"traffic-light/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// LatestMarketData returns the cached MarketData for symbol, or nil when
// nothing has been published for it within the TTL.
func (w *Writer) LatestMarketData(ctx context.Context, symbol string) (*model.MarketData, error) {
	raw, err := w.client.Get(ctx, LatestKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", symbol, err)
	}

	var md model.MarketData
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("redis decode %s: %w", symbol, err)
	}
	return &md, nil
}

// SubscribePattern subscribes to a channel pattern such as "pub:sample:*".
// The caller must close the returned PubSub.
func (w *Writer) SubscribePattern(ctx context.Context, pattern string) *goredis.PubSub {
	return w.client.PSubscribe(ctx, pattern)
}
